package app

import (
	"fmt"

	messageHTTP "github.com/allisson/courier/internal/message/http"
	messageRepository "github.com/allisson/courier/internal/message/repository"
	messageUsecase "github.com/allisson/courier/internal/message/usecase"
)

// MessageRepository returns the message repository based on database driver.
func (c *Container) MessageRepository() (messageUsecase.MessageRepository, error) {
	var err error
	c.domains.messageRepoInit.Do(func() {
		c.domains.messageRepo, err = c.initMessageRepository()
		if err != nil {
			c.initErrors["messageRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageRepo"]; exists {
		return nil, storedErr
	}
	return c.domains.messageRepo, nil
}

// StepHandlers returns the delivery step handlers consumed from the bus.
func (c *Container) StepHandlers() (*messageUsecase.StepHandlers, error) {
	var err error
	c.domains.stepHandlersInit.Do(func() {
		c.domains.stepHandlers, err = c.initStepHandlers()
		if err != nil {
			c.initErrors["stepHandlers"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["stepHandlers"]; exists {
		return nil, storedErr
	}
	return c.domains.stepHandlers, nil
}

// MessageSender returns the use case accepting messages for delivery.
func (c *Container) MessageSender() (*messageUsecase.Sender, error) {
	var err error
	c.domains.messageSenderInit.Do(func() {
		c.domains.messageSender, err = c.initMessageSender()
		if err != nil {
			c.initErrors["messageSender"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageSender"]; exists {
		return nil, storedErr
	}
	return c.domains.messageSender, nil
}

// MessageReader returns the use case reading chat messages.
func (c *Container) MessageReader() (*messageUsecase.Reader, error) {
	var err error
	c.domains.messageReaderInit.Do(func() {
		c.domains.messageReader, err = c.initMessageReader()
		if err != nil {
			c.initErrors["messageReader"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageReader"]; exists {
		return nil, storedErr
	}
	return c.domains.messageReader, nil
}

// MessageHandler returns the HTTP handler for chat messages.
func (c *Container) MessageHandler() (*messageHTTP.MessageHandler, error) {
	var err error
	c.domains.messageHandlerInit.Do(func() {
		c.domains.messageHandler, err = c.initMessageHandler()
		if err != nil {
			c.initErrors["messageHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageHandler"]; exists {
		return nil, storedErr
	}
	return c.domains.messageHandler, nil
}

// initMessageRepository creates the message repository based on the database driver.
func (c *Container) initMessageRepository() (messageUsecase.MessageRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for message repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messageRepository.NewMySQLMessageRepository(db), nil
	case "postgres":
		return messageRepository.NewPostgreSQLMessageRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initStepHandlers creates the delivery step handlers.
func (c *Container) initStepHandlers() (*messageUsecase.StepHandlers, error) {
	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository: %w", err)
	}

	outboxWriter, err := c.OutboxWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox writer: %w", err)
	}

	keeper, err := c.Keeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get secrets keeper: %w", err)
	}

	return messageUsecase.NewStepHandlers(messageRepo, outboxWriter, keeper, c.Logger()), nil
}

// initMessageSender creates the message sender use case.
func (c *Container) initMessageSender() (*messageUsecase.Sender, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager: %w", err)
	}

	operations, err := c.OperationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation use case: %w", err)
	}

	outboxWriter, err := c.OutboxWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox writer: %w", err)
	}

	return messageUsecase.NewSender(txManager, operations, outboxWriter, c.Logger()), nil
}

// initMessageReader creates the message reader use case.
func (c *Container) initMessageReader() (*messageUsecase.Reader, error) {
	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository: %w", err)
	}

	keeper, err := c.Keeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get secrets keeper: %w", err)
	}

	return messageUsecase.NewReader(messageRepo, keeper), nil
}

// initMessageHandler creates the message HTTP handler.
func (c *Container) initMessageHandler() (*messageHTTP.MessageHandler, error) {
	sender, err := c.MessageSender()
	if err != nil {
		return nil, fmt.Errorf("failed to get message sender: %w", err)
	}

	reader, err := c.MessageReader()
	if err != nil {
		return nil, fmt.Errorf("failed to get message reader: %w", err)
	}

	return messageHTTP.NewMessageHandler(sender, reader, c.Logger()), nil
}
