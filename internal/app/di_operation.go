package app

import (
	"fmt"

	operationHTTP "github.com/allisson/courier/internal/operation/http"
	operationRepository "github.com/allisson/courier/internal/operation/repository"
	operationUsecase "github.com/allisson/courier/internal/operation/usecase"
)

// OperationRepository returns the operation ledger repository based on database driver.
func (c *Container) OperationRepository() (operationUsecase.OperationRepository, error) {
	var err error
	c.domains.operationRepoInit.Do(func() {
		c.domains.operationRepo, err = c.initOperationRepository()
		if err != nil {
			c.initErrors["operationRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["operationRepo"]; exists {
		return nil, storedErr
	}
	return c.domains.operationRepo, nil
}

// OperationUseCase returns the operation ledger use case.
func (c *Container) OperationUseCase() (operationUsecase.OperationUseCase, error) {
	var err error
	c.domains.operationUseCaseInit.Do(func() {
		c.domains.operationUseCase, err = c.initOperationUseCase()
		if err != nil {
			c.initErrors["operationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["operationUseCase"]; exists {
		return nil, storedErr
	}
	return c.domains.operationUseCase, nil
}

// OperationHandler returns the HTTP handler for operation tracking.
func (c *Container) OperationHandler() (*operationHTTP.OperationHandler, error) {
	var err error
	c.domains.operationHandlerInit.Do(func() {
		c.domains.operationHandler, err = c.initOperationHandler()
		if err != nil {
			c.initErrors["operationHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["operationHandler"]; exists {
		return nil, storedErr
	}
	return c.domains.operationHandler, nil
}

// initOperationRepository creates the operation repository based on the database driver.
func (c *Container) initOperationRepository() (operationUsecase.OperationRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for operation repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return operationRepository.NewMySQLOperationRepository(db), nil
	case "postgres":
		return operationRepository.NewPostgreSQLOperationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOperationUseCase creates the operation use case with metrics decoration.
func (c *Container) initOperationUseCase() (operationUsecase.OperationUseCase, error) {
	repo, err := c.OperationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation repository: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics: %w", err)
	}

	useCase := operationUsecase.NewOperationUseCase(repo, c.Logger())
	return operationUsecase.NewOperationUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initOperationHandler creates the operation HTTP handler.
func (c *Container) initOperationHandler() (*operationHTTP.OperationHandler, error) {
	useCase, err := c.OperationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation use case: %w", err)
	}
	return operationHTTP.NewOperationHandler(useCase, c.Logger()), nil
}
