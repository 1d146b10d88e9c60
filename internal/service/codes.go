package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Student and employee numbers are random rather than sequential so they
// leak nothing about headcount. Collisions are resolved by regenerating.
const codeAttempts = 10

var errCodeExhausted = errors.New("could not generate a unique code")

func newStudentNo() string {
	return fmt.Sprintf("UE-%d-%s", time.Now().UTC().Year(), randomDigits(6))
}

func newEmployeeNo() string {
	return "UE-T-" + randomDigits(6)
}

func randomDigits(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken anyway.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = '0' + b%10
	}
	return string(buf)
}

// generateUniqueCode retries the generator until the exists check clears,
// giving up after codeAttempts collisions.
func generateUniqueCode(ctx context.Context, gen func() string, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := gen()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errCodeExhausted
}
