package account

// User is the account returned by sign-in.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// DisplayName prefers the full name.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Name
}

// SignInResult is the response of POST /auth/login.
type SignInResult struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// Profile is the patient record of GET /me.
type Profile struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	CPF        string `json:"cpf"`
	BirthDate  string `json:"birthDate"`
	Gender     string `json:"gender"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	CEP        string `json:"cep"`
	Address    string `json:"address"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// ProfileUpdate is the body of PUT /me. Only these fields are editable.
type ProfileUpdate struct {
	FullName  string `json:"fullName" form:"fullName"`
	CPF       string `json:"cpf" form:"cpf"`
	BirthDate string `json:"birthDate" form:"birthDate"`
	Gender    string `json:"gender" form:"gender"`
	Email     string `json:"email" form:"email"`
	Phone     string `json:"phone" form:"phone"`
}

// Apply copies the editable fields onto p, so a rejected form re-renders
// with what the user typed.
func (u ProfileUpdate) Apply(p *Profile) {
	p.FullName = u.FullName
	p.CPF = u.CPF
	p.BirthDate = u.BirthDate
	p.Gender = u.Gender
	p.Email = u.Email
	p.Phone = u.Phone
}

// GenderOption is one entry of the gender select.
type GenderOption struct {
	Value string
	Label string
}

// Genders lists the values the API accepts.
var Genders = []GenderOption{
	{"male", "Masculino"},
	{"female", "Feminino"},
	{"other", "Outro"},
}
