package service

import (
	"sync"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps   Dependencies
	logger *zap.Logger

	once      sync.Once
	phoneAuth *PhoneAuthService
}

func NewServiceFactory(deps Dependencies, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{deps: deps, logger: logger}
}

// PhoneAuthService returns the phone authentication service (singleton)
func (f *ServiceFactory) PhoneAuthService() *PhoneAuthService {
	f.once.Do(func() {
		f.phoneAuth = NewPhoneAuthService(f.deps, f.logger.Named("phone_auth"))
	})
	return f.phoneAuth
}
