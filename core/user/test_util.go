package user

import (
	"github.com/trezcool/scholar/core"
)

// NewServiceMock returns a Service configured with the test configuration.
func NewServiceMock(repo Repository, mailSvc core.EmailService) *Service {
	return NewService(repo, mailSvc, core.NewTestConfig())
}
