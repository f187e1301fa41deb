package authapi

import "time"

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type loginResponse struct {
	User  userResponse  `json:"user"`
	Token tokenResponse `json:"token"`
}

type refreshResponse struct {
	Token tokenResponse `json:"token"`
}

type registerResponse struct {
	User userResponse `json:"user"`
}

type checkUsernameResponse struct {
	Exists bool `json:"exists"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}
