package account

import (
	"net/mail"
	"strings"
	"unicode"
)

// FieldErrors maps form field names to the message shown next to them.
type FieldErrors map[string]string

// Any reports whether at least one field failed.
func (f FieldErrors) Any() bool {
	return len(f) > 0
}

// MinPasswordLen is the shortest password accepted anywhere.
const MinPasswordLen = 8

const (
	msgEmailFormat    = "Formato de e-mail inválido"
	msgEmailRequired  = "Informe seu e-mail"
	msgPasswordLen    = "A senha deve conter pelo menos 8 caracteres"
	msgPasswordUpper  = "A senha deve conter pelo menos uma letra maiúscula"
	msgPasswordLower  = "A senha deve conter pelo menos uma letra minúscula"
	msgPasswordDigit  = "A senha deve conter pelo menos um número ou caractere especial"
	msgPasswordsMatch = "As senhas não coincidem"
	msgRequired       = "Campo obrigatório"
)

// specialChars are the symbols that satisfy the digit-or-special rule.
const specialChars = `!@#$%^&*(),.?":{}|<>`

// ValidEmail accepts a bare address (no display name) whose domain has at
// least one dot.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func checkEmail(errs FieldErrors, email string) {
	switch {
	case email == "":
		errs["email"] = msgEmailRequired
	case !ValidEmail(email):
		errs["email"] = msgEmailFormat
	}
}

// ValidateLogin checks the sign-in form.
func ValidateLogin(email, password string) FieldErrors {
	errs := FieldErrors{}
	checkEmail(errs, email)
	if len([]rune(password)) < MinPasswordLen {
		errs["password"] = msgPasswordLen
	}
	return errs
}

// ValidateForgot checks the forgot-password form.
func ValidateForgot(email string) FieldErrors {
	errs := FieldErrors{}
	checkEmail(errs, email)
	return errs
}

// ValidateReset checks a new password and its confirmation. Only the first
// failing password rule is reported; a mismatch is reported on the
// confirmation field alone.
func ValidateReset(password, confirm string) FieldErrors {
	errs := FieldErrors{}
	if msg := passwordRule(password); msg != "" {
		errs["password"] = msg
	}
	if password != confirm {
		errs["confirmPassword"] = msgPasswordsMatch
	}
	return errs
}

func passwordRule(p string) string {
	var upper, lower, digitOrSpecial bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r) && r <= unicode.MaxASCII:
			upper = true
		case unicode.IsLower(r) && r <= unicode.MaxASCII:
			lower = true
		case unicode.IsDigit(r) && r <= unicode.MaxASCII, strings.ContainsRune(specialChars, r):
			digitOrSpecial = true
		}
	}
	switch {
	case len([]rune(p)) < MinPasswordLen:
		return msgPasswordLen
	case !upper:
		return msgPasswordUpper
	case !lower:
		return msgPasswordLower
	case !digitOrSpecial:
		return msgPasswordDigit
	}
	return ""
}

// ValidateProfile checks the required profile fields.
func ValidateProfile(u ProfileUpdate) FieldErrors {
	errs := FieldErrors{}
	for field, v := range map[string]string{
		"fullName":  u.FullName,
		"cpf":       u.CPF,
		"birthDate": u.BirthDate,
		"gender":    u.Gender,
	} {
		if strings.TrimSpace(v) == "" {
			errs[field] = msgRequired
		}
	}
	checkEmail(errs, u.Email)
	if u.Gender != "" {
		known := false
		for _, g := range Genders {
			known = known || g.Value == u.Gender
		}
		if !known {
			errs["gender"] = msgRequired
		}
	}
	return errs
}
