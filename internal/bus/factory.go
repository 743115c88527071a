package bus

import (
	"fmt"
	"strings"

	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration. When an
// event log path is set, published events are also appended to that file.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	inner, err := newInner(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLog, true)
	if err != nil {
		_ = inner.Close()
		return nil, errors.InternalError("opening event log", err)
	}
	return NewLoggedBus(inner, eventLogger, log), nil
}

func newInner(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = DefaultConsumerGroup
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      DefaultClientID,
		}, log)

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}
