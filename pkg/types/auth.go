package types

// TokenType represents the type of authentication token.
type TokenType string

const (
	TokenTypeAdmin TokenType = "admin" // static admin token from config
	TokenTypeUser  TokenType = "user"  // signed JWT
)

// AuthInfo contains identity information for authenticated requests.
type AuthInfo struct {
	TokenType TokenType
	Subject   string
}

func (a *AuthInfo) IsAdmin() bool {
	return a != nil && a.TokenType == TokenTypeAdmin
}
