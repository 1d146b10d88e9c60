package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/universityofengineers/sms-api/internal/models"
)

type fakeAuthAccountStore struct {
	accounts map[int64]*models.Account
	tokens   map[string]*models.RefreshToken
	nextID   int64
}

func newFakeAuthAccountStore() *fakeAuthAccountStore {
	return &fakeAuthAccountStore{accounts: make(map[int64]*models.Account), tokens: make(map[string]*models.RefreshToken), nextID: 100}
}

func (f *fakeAuthAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthAccountStore) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAuthAccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAuthAccountStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	copied := *token
	f.tokens[token.Token] = &copied
	return nil
}

func (f *fakeAuthAccountStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *fakeAuthAccountStore) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range f.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAuthAccountStore) addAccount(email, password string, role models.Role, enabled bool) *models.Account {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	account := &models.Account{ID: f.nextID, Email: email, PasswordHash: string(hash), Role: role, Enabled: enabled}
	f.nextID++
	f.accounts[account.ID] = account
	return account
}

type fakeAuthStudentStore struct {
	students map[int64]*models.Student
	nextID   int64
}

func (f *fakeAuthStudentStore) FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error) {
	for _, s := range f.students {
		if s.AccountID == accountID {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAuthStudentStore) ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error) {
	for _, s := range f.students {
		if s.StudentNo == studentNo {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAuthStudentStore) CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error {
	account.ID = 500 + f.nextID
	student.ID = f.nextID
	student.AccountID = account.ID
	f.nextID++
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func newAuthFixture() (*AuthService, *fakeAuthAccountStore, *fakeAuthStudentStore) {
	accounts := newFakeAuthAccountStore()
	students := &fakeAuthStudentStore{students: make(map[int64]*models.Student), nextID: 1}
	teachers := &fakeTeacherReader{teachers: map[int64]*models.Teacher{}}
	departments := &fakeDepartmentReader{departments: map[int64]*models.Department{
		1: {ID: 1, Code: "CENG", Name: "Computer Engineering"},
	}}
	cfg := AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "sms-api-test",
	}
	svc := NewAuthService(accounts, students, teachers, departments, nil, nil, cfg)
	return svc, accounts, students
}

func TestRegisterStudentIssuesCredential(t *testing.T) {
	svc, accounts, students := newAuthFixture()

	res, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		Email: " Ada@UE.edu ", Password: "secret1", FullName: "Ada Amaro", DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "ada@ue.edu", res.Email)
	assert.Equal(t, models.RoleStudent, res.Role)
	require.NotNil(t, res.StudentID)
	assert.Equal(t, models.StudentStatusActive, students.students[*res.StudentID].Status)
	assert.Len(t, accounts.tokens, 1)

	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, claims.AccountID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestRegisterStudentRejectsDuplicateEmail(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	_, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		Email: "ada@ue.edu", Password: "secret1", FullName: "Impostor", DepartmentID: 1,
	})
	assertAppError(t, err, 409, "Email already registered.")
}

func TestRegisterStudentUnknownDepartment(t *testing.T) {
	svc, _, _ := newAuthFixture()

	_, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		Email: "ada@ue.edu", Password: "secret1", FullName: "Ada Amaro", DepartmentID: 99,
	})
	assertAppError(t, err, 404, "Department not found.")
}

func TestLoginWrongPassword(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "wrong"})
	assertAppError(t, err, 401, "Invalid credentials.")
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@ue.edu", Password: "secret1"})
	assertAppError(t, err, 401, "Invalid credentials.")
}

func TestLoginNormalizesEmail(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "  ADA@ue.edu ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@ue.edu", res.Email)
	assert.Equal(t, models.RoleStudent, res.Role)
}

func TestLoginDisabledAccountAfterPasswordCheck(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, false)

	// Wrong password on a disabled account must not leak the disabled state.
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "wrong"})
	assertAppError(t, err, 401, "Invalid credentials.")

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "secret1"})
	assertAppError(t, err, 409, "Account is disabled.")
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	first, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "secret1"})
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.True(t, accounts.tokens[first.RefreshToken].Revoked)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assertAppError(t, err, 401, "refresh token is expired or revoked")
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	account := accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)
	accounts.tokens["stale"] = &models.RefreshToken{
		ID: "rt-1", AccountID: account.ID, Token: "stale", ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	assertAppError(t, err, 401, "refresh token is expired or revoked")
}

func TestRefreshDisabledAccount(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	account := accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "secret1"})
	require.NoError(t, err)

	accounts.accounts[account.ID].Enabled = false
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	assertAppError(t, err, 409, "Account is disabled.")
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "secret1"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), res.RefreshToken, res.AccountID+1)
	assertAppError(t, err, 403, "token does not belong to account")

	require.NoError(t, svc.Logout(context.Background(), res.RefreshToken, res.AccountID))
	assert.True(t, accounts.tokens[res.RefreshToken].Revoked)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, accounts, _ := newAuthFixture()
	accounts.addAccount("ada@ue.edu", "secret1", models.RoleStudent, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@ue.edu", Password: "secret1"})
	require.NoError(t, err)

	other := NewAuthService(accounts, &fakeAuthStudentStore{students: map[int64]*models.Student{}}, &fakeTeacherReader{teachers: map[int64]*models.Teacher{}}, &fakeDepartmentReader{departments: map[int64]*models.Department{}}, nil, nil, AuthConfig{AccessTokenSecret: "other-secret"})
	_, err = other.ValidateToken(res.Token)
	require.Error(t, err)
}
