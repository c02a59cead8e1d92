package handlers

// CheckRequest is the request for counting one call against an identifier.
type CheckRequest struct {
	Identifier string `doc:"Caller identifier, e.g. a user id or API key" example:"user:42" maxLength:"256" minLength:"1" path:"identifier"`
}

// CheckResponse is returned when the call is within the limit.
type CheckResponse struct {
	Limit     int64 `header:"X-RateLimit-Limit"`
	Remaining int64 `header:"X-RateLimit-Remaining"`
	Reset     int64 `header:"X-RateLimit-Reset"`
	Body      struct {
		Identifier string `doc:"The identifier that was checked"          example:"user:42" json:"identifier"`
		Allowed    bool   `doc:"Always true; rejections are returned as 429" example:"true"   json:"allowed"`
		Limit      int64  `doc:"Calls allowed per window"                   example:"100"     json:"limit"`
		Remaining  int64  `doc:"Calls left in the current window"          example:"99"      json:"remaining"`
		Reset      int64  `doc:"Seconds until the window resets, -1 if none" example:"60"    json:"reset"`
	}
}

// StatusRequest is the request for inspecting an identifier without counting.
type StatusRequest struct {
	Identifier string `doc:"Caller identifier" example:"user:42" maxLength:"256" minLength:"1" path:"identifier"`
}

// StatusResponse reports the current window of an identifier.
type StatusResponse struct {
	Body struct {
		Identifier string `doc:"The identifier"                            example:"user:42" json:"identifier"`
		Limit      int64  `doc:"Calls allowed per window"                  example:"100"     json:"limit"`
		Remaining  int64  `doc:"Calls left in the current window"          example:"100"     json:"remaining"`
		Reset      int64  `doc:"Seconds until the window resets, -1 if none" example:"-1"   json:"reset"`
	}
}
