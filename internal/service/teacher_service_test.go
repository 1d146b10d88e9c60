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

type fakeTeacherStore struct {
	teachers    map[int64]*models.Teacher
	accounts    *fakeAccountStore
	nextID      int64
	takenNos    map[string]bool
	allNosTaken bool
}

func newFakeTeacherStore(accounts *fakeAccountStore) *fakeTeacherStore {
	return &fakeTeacherStore{teachers: make(map[int64]*models.Teacher), accounts: accounts, nextID: 1, takenNos: make(map[string]bool)}
}

func (f *fakeTeacherStore) List(ctx context.Context) ([]models.TeacherDetail, error) {
	out := make([]models.TeacherDetail, 0, len(f.teachers))
	for _, t := range f.teachers {
		out = append(out, models.TeacherDetail{Teacher: *t})
	}
	return out, nil
}

func (f *fakeTeacherStore) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTeacherStore) FindDetailByID(ctx context.Context, id int64) (*models.TeacherDetail, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.TeacherDetail{Teacher: *t}
	if account, ok := f.accounts.accounts[t.AccountID]; ok {
		detail.Email = account.Email
		detail.Enabled = account.Enabled
	}
	return &detail, nil
}

func (f *fakeTeacherStore) FindByAccountID(ctx context.Context, accountID int64) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.AccountID == accountID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherStore) ExistsByEmployeeNo(ctx context.Context, employeeNo string) (bool, error) {
	return f.allNosTaken || f.takenNos[employeeNo], nil
}

func (f *fakeTeacherStore) CreateWithAccount(ctx context.Context, account *models.Account, teacher *models.Teacher) error {
	if err := f.accounts.create(account); err != nil {
		return err
	}
	teacher.ID = f.nextID
	teacher.AccountID = account.ID
	f.nextID++
	copied := *teacher
	f.teachers[teacher.ID] = &copied
	return nil
}

func (f *fakeTeacherStore) Update(ctx context.Context, teacher *models.Teacher) error {
	if _, ok := f.teachers[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *teacher
	f.teachers[teacher.ID] = &copied
	return nil
}

type fakeAccountStore struct {
	accounts map[int64]*models.Account
	nextID   int64
	revoked  []int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[int64]*models.Account), nextID: 100}
}

func (f *fakeAccountStore) create(account *models.Account) error {
	account.ID = f.nextID
	f.nextID++
	copied := *account
	f.accounts[account.ID] = &copied
	return nil
}

func (f *fakeAccountStore) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountStore) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	a, ok := f.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = updatedAt
	return nil
}

func (f *fakeAccountStore) SetEnabled(ctx context.Context, id int64, enabled bool, updatedAt time.Time) error {
	a, ok := f.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Enabled = enabled
	a.UpdatedAt = updatedAt
	return nil
}

func (f *fakeAccountStore) RevokeAccountRefreshTokens(ctx context.Context, accountID int64) error {
	f.revoked = append(f.revoked, accountID)
	return nil
}

func newTeacherFixture() (*TeacherService, *fakeTeacherStore, *fakeAccountStore) {
	accounts := newFakeAccountStore()
	teachers := newFakeTeacherStore(accounts)
	departments := &fakeDepartmentReader{departments: map[int64]*models.Department{
		1: {ID: 1, Code: "CENG", Name: "Computer Engineering"},
	}}

	accounts.accounts[200] = &models.Account{ID: 200, Email: "chen@ue.edu", Role: models.RoleTeacher, Enabled: true}
	teachers.teachers[7] = &models.Teacher{ID: 7, AccountID: 200, EmployeeNo: "UE-T-000007", FullName: "Dr. Chen", Title: models.TitleProfessor, DepartmentID: 1}
	teachers.nextID = 8

	svc := NewTeacherService(teachers, accounts, departments, nil, nil)
	return svc, teachers, accounts
}

func TestTeacherCreateProvisionsAccountAndProfile(t *testing.T) {
	svc, teachers, accounts := newTeacherFixture()

	detail, err := svc.Create(context.Background(), TeacherCreateRequest{
		Email: " New.Teacher@UE.edu ", Password: "supersecret", FullName: "Dr. New", Title: models.TitleLecturer, DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.teacher@ue.edu", detail.Email)
	assert.True(t, detail.Enabled)
	assert.Regexp(t, `^UE-T-\d{6}$`, detail.EmployeeNo)
	assert.Len(t, teachers.teachers, 2)

	account := accounts.accounts[detail.AccountID]
	require.NotNil(t, account)
	assert.Equal(t, models.RoleTeacher, account.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("supersecret")))
}

func TestTeacherCreateRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newTeacherFixture()

	_, err := svc.Create(context.Background(), TeacherCreateRequest{
		Email: "CHEN@ue.edu", Password: "supersecret", FullName: "Impostor", Title: models.TitleLecturer, DepartmentID: 1,
	})
	assertAppError(t, err, 409, "Email already registered.")
}

func TestTeacherCreateUnknownDepartment(t *testing.T) {
	svc, _, _ := newTeacherFixture()

	_, err := svc.Create(context.Background(), TeacherCreateRequest{
		Email: "new@ue.edu", Password: "supersecret", FullName: "Dr. New", Title: models.TitleLecturer, DepartmentID: 99,
	})
	assertAppError(t, err, 404, "Department not found.")
}

func TestTeacherCreateExhaustedEmployeeNumbers(t *testing.T) {
	svc, teachers, _ := newTeacherFixture()
	// Every candidate collides, so generation gives up after its bounded
	// number of attempts.
	teachers.allNosTaken = true

	_, err := svc.Create(context.Background(), TeacherCreateRequest{
		Email: "new@ue.edu", Password: "supersecret", FullName: "Dr. New", Title: models.TitleLecturer, DepartmentID: 1,
	})
	assertAppError(t, err, 400, "Could not generate unique employee number. Try again.")
}

func TestTeacherCannotDisableOwnAccount(t *testing.T) {
	svc, _, _ := newTeacherFixture()

	err := svc.SetEnabled(context.Background(), 7, false, 200)
	assertAppError(t, err, 400, "You cannot disable your own teacher account.")
}

func TestTeacherDisableRevokesSessions(t *testing.T) {
	svc, _, accounts := newTeacherFixture()

	require.NoError(t, svc.Disable(context.Background(), 7, 999))
	assert.False(t, accounts.accounts[200].Enabled)
	assert.Contains(t, accounts.revoked, int64(200))
}

func TestTeacherReEnableDoesNotRevoke(t *testing.T) {
	svc, _, accounts := newTeacherFixture()
	accounts.accounts[200].Enabled = false

	require.NoError(t, svc.SetEnabled(context.Background(), 7, true, 200))
	assert.True(t, accounts.accounts[200].Enabled)
	assert.Empty(t, accounts.revoked)
}

func TestTeacherResetPasswordRejectsDisabledAccount(t *testing.T) {
	svc, _, accounts := newTeacherFixture()
	accounts.accounts[200].Enabled = false

	err := svc.ResetPassword(context.Background(), 7, models.PasswordResetRequest{NewPassword: "freshsecret"})
	assertAppError(t, err, 409, "Account is disabled.")
}

func TestTeacherResetPasswordRevokesSessions(t *testing.T) {
	svc, _, accounts := newTeacherFixture()

	require.NoError(t, svc.ResetPassword(context.Background(), 7, models.PasswordResetRequest{NewPassword: "freshsecret"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(accounts.accounts[200].PasswordHash), []byte("freshsecret")))
	assert.Contains(t, accounts.revoked, int64(200))
}

func TestTeacherUpdateMeChangesNameAndTitleOnly(t *testing.T) {
	svc, teachers, _ := newTeacherFixture()

	detail, err := svc.UpdateMe(context.Background(), 200, TeacherUpdateMeRequest{FullName: "Dr. S. Chen", Title: models.TitleAssociateProfessor})
	require.NoError(t, err)
	assert.Equal(t, "Dr. S. Chen", detail.FullName)
	assert.Equal(t, models.TitleAssociateProfessor, detail.Title)
	assert.Equal(t, int64(1), teachers.teachers[7].DepartmentID)
}

func TestTeacherMeMissingProfile(t *testing.T) {
	svc, _, _ := newTeacherFixture()

	_, err := svc.Me(context.Background(), 999)
	assertAppError(t, err, 404, "Teacher profile not found.")
}
