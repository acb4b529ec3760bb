package upstream

// TokenBody is the payload of POST /token.
type TokenBody struct {
	// Subject: 3-64 characters (letters, numbers, dots, hyphens, underscores) - required
	Subject string `json:"subject" binding:"required,subject"`
	// Scope: read or write (optional)
	Scope string `json:"scope,omitempty" binding:"omitempty,scope"`
}
