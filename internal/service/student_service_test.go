package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/universityofengineers/sms-api/internal/models"
)

type fakeStudentStore struct {
	students    map[int64]*models.Student
	accounts    *fakeAccountStore
	nextID      int64
	allNosTaken bool
}

func newFakeStudentStore(accounts *fakeAccountStore) *fakeStudentStore {
	return &fakeStudentStore{students: make(map[int64]*models.Student), accounts: accounts, nextID: 1}
}

func (f *fakeStudentStore) List(ctx context.Context) ([]models.StudentDetail, error) {
	out := make([]models.StudentDetail, 0, len(f.students))
	for _, s := range f.students {
		out = append(out, models.StudentDetail{Student: *s})
	}
	return out, nil
}

func (f *fakeStudentStore) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStudentStore) FindDetailByID(ctx context.Context, id int64) (*models.StudentDetail, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.StudentDetail{Student: *s}
	if account, ok := f.accounts.accounts[s.AccountID]; ok {
		detail.Email = account.Email
		detail.Enabled = account.Enabled
	}
	return &detail, nil
}

func (f *fakeStudentStore) FindByAccountID(ctx context.Context, accountID int64) (*models.Student, error) {
	for _, s := range f.students {
		if s.AccountID == accountID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentStore) ExistsByStudentNo(ctx context.Context, studentNo string) (bool, error) {
	if f.allNosTaken {
		return true, nil
	}
	for _, s := range f.students {
		if s.StudentNo == studentNo {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStudentStore) CreateWithAccount(ctx context.Context, account *models.Account, student *models.Student) error {
	if err := f.accounts.create(account); err != nil {
		return err
	}
	student.ID = f.nextID
	student.AccountID = account.ID
	f.nextID++
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) Update(ctx context.Context, student *models.Student) error {
	if _, ok := f.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) UpdateStatus(ctx context.Context, id int64, status models.StudentStatus) error {
	s, ok := f.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	return nil
}

func (f *fakeStudentStore) UpdateContact(ctx context.Context, id int64, phone, address *string) error {
	s, ok := f.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Phone = phone
	s.Address = address
	return nil
}

func newStudentFixture() (*StudentService, *fakeStudentStore, *fakeAccountStore) {
	accounts := newFakeAccountStore()
	students := newFakeStudentStore(accounts)
	departments := &fakeDepartmentReader{departments: map[int64]*models.Department{
		1: {ID: 1, Code: "CENG", Name: "Computer Engineering"},
	}}

	accounts.accounts[100] = &models.Account{ID: 100, Email: "ada@ue.edu", Role: models.RoleStudent, Enabled: true}
	students.students[1] = &models.Student{ID: 1, AccountID: 100, StudentNo: "UE-2026-000001", FullName: "Ada Amaro", Status: models.StudentStatusActive, DepartmentID: 1}
	students.nextID = 2

	svc := NewStudentService(students, accounts, departments, nil, nil)
	return svc, students, accounts
}

func TestStudentCreateProvisionsAccountAndProfile(t *testing.T) {
	svc, students, accounts := newStudentFixture()

	detail, err := svc.Create(context.Background(), StudentCreateRequest{
		Email: " Bora@UE.edu ", Password: "supersecret", FullName: "Bora Kemal", DepartmentID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "bora@ue.edu", detail.Email)
	assert.Equal(t, models.StudentStatusActive, detail.Status)
	assert.Regexp(t, `^UE-\d{4}-\d{6}$`, detail.StudentNo)
	assert.Len(t, students.students, 2)

	account := accounts.accounts[detail.AccountID]
	require.NotNil(t, account)
	assert.Equal(t, models.RoleStudent, account.Role)
}

func TestStudentCreateRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), StudentCreateRequest{
		Email: "ADA@ue.edu", Password: "supersecret", FullName: "Impostor", DepartmentID: 1,
	})
	assertAppError(t, err, 409, "Email already registered.")
}

func TestStudentCreateExhaustedStudentNumbers(t *testing.T) {
	svc, students, _ := newStudentFixture()
	students.allNosTaken = true

	_, err := svc.Create(context.Background(), StudentCreateRequest{
		Email: "bora@ue.edu", Password: "supersecret", FullName: "Bora Kemal", DepartmentID: 1,
	})
	assertAppError(t, err, 400, "Could not generate unique student number. Try again.")
}

func TestStudentUpdateStatus(t *testing.T) {
	svc, students, _ := newStudentFixture()

	detail, err := svc.UpdateStatus(context.Background(), 1, StudentStatusUpdateRequest{Status: models.StudentStatusSuspended})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusSuspended, detail.Status)
	assert.Equal(t, models.StudentStatusSuspended, students.students[1].Status)
}

func TestStudentUpdateStatusRejectsUnknownValue(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.UpdateStatus(context.Background(), 1, StudentStatusUpdateRequest{Status: "GRADUATED"})
	require.Error(t, err)
}

func TestStudentDisableDropsActiveAndRevokes(t *testing.T) {
	svc, students, accounts := newStudentFixture()

	require.NoError(t, svc.Disable(context.Background(), 1))
	assert.False(t, accounts.accounts[100].Enabled)
	assert.Equal(t, models.StudentStatusDropped, students.students[1].Status)
	assert.Contains(t, accounts.revoked, int64(100))
}

func TestStudentDisableKeepsNonActiveStatus(t *testing.T) {
	svc, students, accounts := newStudentFixture()
	students.students[1].Status = models.StudentStatusSuspended

	require.NoError(t, svc.Disable(context.Background(), 1))
	assert.False(t, accounts.accounts[100].Enabled)
	assert.Equal(t, models.StudentStatusSuspended, students.students[1].Status)
}

func TestStudentResetPasswordRejectsDisabledAccount(t *testing.T) {
	svc, _, accounts := newStudentFixture()
	accounts.accounts[100].Enabled = false

	err := svc.ResetPassword(context.Background(), 1, models.PasswordResetRequest{NewPassword: "freshsecret"})
	assertAppError(t, err, 409, "Account is disabled.")
}

func TestStudentResetPasswordHashesAndRevokes(t *testing.T) {
	svc, _, accounts := newStudentFixture()

	require.NoError(t, svc.ResetPassword(context.Background(), 1, models.PasswordResetRequest{NewPassword: "freshsecret"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(accounts.accounts[100].PasswordHash), []byte("freshsecret")))
	assert.Contains(t, accounts.revoked, int64(100))
}

func TestStudentUpdateMeTouchesContactOnly(t *testing.T) {
	svc, students, _ := newStudentFixture()
	phone := " +90 555 000 00 00 "
	address := "Campus Dorm B"

	detail, err := svc.UpdateMe(context.Background(), 100, StudentUpdateMeRequest{Phone: &phone, Address: &address})
	require.NoError(t, err)
	require.NotNil(t, detail.Phone)
	assert.Equal(t, "+90 555 000 00 00", *detail.Phone)
	assert.Equal(t, "Ada Amaro", students.students[1].FullName)
}

func TestStudentGetUnknown(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Get(context.Background(), 42)
	assertAppError(t, err, 404, "Student not found.")
}
