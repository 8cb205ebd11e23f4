package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/types"
)

// Stores holds the repository doubles for testing
type Stores struct {
	UsageRepo    *InMemoryUsageRecordStore
	Subscription *InMemorySubscriptionResolver
}

// BaseServiceTestSuite provides common functionality for all service test
// suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	logger *logger.Logger
	now    time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	log, err := logger.NewLogger(types.LogLevelInfo)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.logger = log
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Now().UTC()
	s.stores = Stores{
		UsageRepo:    NewInMemoryUsageRecordStore(),
		Subscription: NewInMemorySubscriptionResolver(),
	}
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
