package handler

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type currentResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type profileRequest struct {
	FirstName  string `json:"first_name"  validate:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"   validate:"required"`
	Age        int    `json:"age"         validate:"gte=0"`
	Email      string `json:"email"       validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Province   string `json:"province"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}
