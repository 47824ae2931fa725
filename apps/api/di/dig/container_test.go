package dig_container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/scholar/apps/api/echo"
	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	eventsvc "github.com/trezcool/scholar/services/events"
	exportsvc "github.com/trezcool/scholar/services/exports"
)

// newMemoryConfig is the default setup without any backing service: no database, NATS, S3 or sendgrid.
func newMemoryConfig() *core.Config {
	conf := core.NewTestConfig()
	conf.Database.Engine = MemoryEngine
	return conf
}

func TestNewWithConfig(t *testing.T) {
	c := NewWithConfig(newMemoryConfig)

	err := c.Invoke(func(
		events core.EventPublisher,
		files core.FileStore,
		usrSvc user.ServiceInterface,
		sessionSvc session.ServiceInterface,
		courseSvc course.ServiceInterface,
		registrationSvc registration.ServiceInterface,
		server *echoapi.Server,
	) {
		assert.IsType(t, &eventsvc.Nop{}, events)
		assert.IsType(t, &exportsvc.MemoryStore{}, files)
		assert.NotNil(t, usrSvc)
		assert.NotNil(t, sessionSvc)
		assert.NotNil(t, courseSvc)
		assert.NotNil(t, registrationSvc)
		assert.NotNil(t, server)
	})
	require.NoError(t, err)
}
