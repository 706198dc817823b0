package channels

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type selectorMetrics struct {
	decrypt metric.Int64Counter
	encrypt metric.Int64Counter
}

func newSelectorMetrics(meter metric.Meter, log logrus.FieldLogger) *selectorMetrics {
	m := &selectorMetrics{}

	var err error
	m.decrypt, err = meter.Int64Counter("meshchan.selector.decrypt",
		metric.WithDescription("Receive-side key selections by match kind"),
		metric.WithUnit("{selection}"))
	if err != nil {
		log.WithError(err).Warn("Failed to create decrypt counter")
		m.decrypt = nil
	}

	m.encrypt, err = meter.Int64Counter("meshchan.selector.encrypt",
		metric.WithDescription("Transmit-side key selections"),
		metric.WithUnit("{selection}"))
	if err != nil {
		log.WithError(err).Warn("Failed to create encrypt counter")
		m.encrypt = nil
	}

	return m
}

func (m *selectorMetrics) recordDecrypt(ctx context.Context, kind matchKind) {
	if m == nil || m.decrypt == nil {
		return
	}
	m.decrypt.Add(ctx, 1, metric.WithAttributes(attribute.String("match", kind.String())))
}

func (m *selectorMetrics) recordEncrypt(ctx context.Context, ok bool) {
	if m == nil || m.encrypt == nil {
		return
	}
	m.encrypt.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}
