package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"
	"time"

	authorizer "github.com/localnerve/authorizer-go"
)

const passwordLength = 12

// each generated password draws at least one character from every class
var passwordClasses = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"0123456789",
	"!@#$%^&*",
}

// TestAccount is an authorizer user created for one test run
type TestAccount struct {
	Email       string
	Password    string
	Roles       []string
	UserID      string
	AccessToken string
}

// NewTestAccount makes a unique email and a strong password for the roles.
// Call Acquire to register it.
func NewTestAccount(prefix string, roles ...string) *TestAccount {
	return &TestAccount{
		Email:    fmt.Sprintf("%s-%d@autogift.test", prefix, time.Now().UnixNano()),
		Password: GeneratePassword(),
		Roles:    roles,
	}
}

func randInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// GeneratePassword satisfies the authorizer's password policy
func GeneratePassword() string {
	var all string
	password := make([]byte, 0, passwordLength)
	for _, class := range passwordClasses {
		password = append(password, class[randInt(len(class))])
		all += class
	}
	for len(password) < passwordLength {
		password = append(password, all[randInt(len(all))])
	}

	for i := len(password) - 1; i > 0; i-- {
		j := randInt(i + 1)
		password[i], password[j] = password[j], password[i]
	}
	return string(password)
}

// Acquire signs the account up and logs it in, filling in UserID and AccessToken.
// A signup failure is only logged, the account may exist from an earlier run.
func (a *TestAccount) Acquire(t *testing.T, authzURL, clientID string) {
	t.Helper()

	client, err := authorizer.NewAuthorizerClient(clientID, authzURL, "", nil)
	if err != nil {
		t.Fatalf("Failed to create authorizer client: %v", err)
	}

	roles := make([]*string, len(a.Roles))
	for i := range a.Roles {
		roles[i] = &a.Roles[i]
	}

	if _, err := client.SignUp(&authorizer.SignUpInput{
		Email:           &a.Email,
		Password:        a.Password,
		ConfirmPassword: a.Password,
		Roles:           roles,
	}); err != nil {
		t.Logf("Signup failed for %s: %v", a.Email, err)
	}

	res, err := client.Login(&authorizer.LoginInput{
		Email:    &a.Email,
		Password: a.Password,
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("Login failed for %s: %v", a.Email, err)
	}
	if res.AccessToken == nil || *res.AccessToken == "" {
		t.Fatalf("No access token for %s", a.Email)
	}

	a.AccessToken = *res.AccessToken
	if res.User != nil {
		a.UserID = res.User.ID
	}
}
