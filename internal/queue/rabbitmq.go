package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Cabeçalhos das mensagens de job. Os de falha só aparecem na DLQ.
const (
	HeaderRetries        = "x-retries"
	HeaderKind           = "x-job-kind"
	HeaderSource         = "x-job-source"
	HeaderFilename       = "x-job-filename"
	HeaderFailureReason  = "x-failure-reason"
	HeaderFailureSummary = "x-failure-summary"
	HeaderPermanent      = "x-failure-permanent"
	HeaderFailedAt       = "x-failed-at"
)

const (
	publishTimeout = 5 * time.Second
	maxReasonLen   = 512
)

// Options vem da config (FISCAL_RABBITMQ_*).
type Options struct {
	URL        string
	Queue      string
	MaxRetries int
	Prefetch   int
}

// topology é a fila de jobs com a DLQ ligada por um exchange direct.
type topology struct {
	queue string
	dlx   string
	dlq   string
}

func newTopology(queue string) topology {
	return topology{queue: queue, dlx: queue + ".dlx", dlq: queue + ".dlq"}
}

func (t topology) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("erro declarando exchange DLX %q: %w", t.dlx, err)
	}
	if _, err := ch.QueueDeclare(t.dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("erro declarando fila DLQ %q: %w", t.dlq, err)
	}
	if err := ch.QueueBind(t.dlq, t.dlq, t.dlx, false, nil); err != nil {
		return fmt.Errorf("erro bindando DLQ %q no DLX %q: %w", t.dlq, t.dlx, err)
	}
	// nack sem requeue também cai na DLQ, sem os cabeçalhos de falha
	args := amqp.Table{
		"x-dead-letter-exchange":    t.dlx,
		"x-dead-letter-routing-key": t.dlq,
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("erro declarando fila %q: %w", t.queue, err)
	}
	return nil
}

// RabbitMQ publica jobs do watcher e entrega ao worker. Falha transitória
// volta para a fila com x-retries+1; falha permanente ou tentativas esgotadas
// vão para a DLQ com o motivo nos cabeçalhos.
type RabbitMQ struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	topo       topology
	confirmCh  <-chan amqp.Confirmation
	maxRetries int
}

func NewRabbitMQ(opts Options) (*RabbitMQ, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("erro conectando no RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("erro abrindo canal no RabbitMQ: %w", err)
	}

	r := &RabbitMQ{
		conn:       conn,
		ch:         ch,
		topo:       newTopology(opts.Queue),
		maxRetries: max(opts.MaxRetries, 0),
	}
	if err := r.setup(max(opts.Prefetch, 1)); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) setup(prefetch int) error {
	if err := r.topo.declare(r.ch); err != nil {
		return err
	}
	if err := r.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("erro configurando QoS (prefetch=%d): %w", prefetch, err)
	}
	if err := r.ch.Confirm(false); err != nil {
		return fmt.Errorf("erro habilitando publisher confirms: %w", err)
	}
	r.confirmCh = r.ch.NotifyPublish(make(chan amqp.Confirmation, prefetch*2))
	return nil
}

// publish envia e espera o confirm do broker.
func (r *RabbitMQ) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	err := r.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
	})
	if err != nil {
		return fmt.Errorf("erro publicando mensagem no RabbitMQ (exchange=%q key=%q): %w", exchange, key, err)
	}

	select {
	case conf := <-r.confirmCh:
		if !conf.Ack {
			return fmt.Errorf("mensagem não confirmada pelo broker")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// PublishJob publica o job na fila principal.
func (r *RabbitMQ) PublishJob(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("erro serializando job: %w", err)
	}
	return r.publish(ctx, "", r.topo.queue, body, jobHeaders(job, 0))
}

// ConsumeJobs entrega cada job ao handler até o contexto acabar.
func (r *RabbitMQ) ConsumeJobs(ctx context.Context, handler func(Job) error) error {
	msgs, err := r.ch.Consume(r.topo.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("erro iniciando consumo do RabbitMQ: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("canal de mensagens encerrado")
			}
			r.deliver(ctx, msg, handler)
		}
	}
}

func (r *RabbitMQ) deliver(ctx context.Context, msg amqp.Delivery, handler func(Job) error) {
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		slog.Error("job ilegível no RabbitMQ, enviando para DLQ", "err", err)
		r.deadLetter(ctx, msg, Job{}, Permanent(fmt.Errorf("job ilegível: %w", err)), 0)
		return
	}

	err := handler(job)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	retries := extractRetries(msg.Headers)
	log := slog.With(
		"path", job.Path,
		"kind", job.Kind,
		"source", job.Source,
		"retries", retries,
		"max_retries", r.maxRetries,
		"err", err,
	)
	if shouldRetry(err, retries, r.maxRetries) {
		log.Warn("erro processando job, reenfileirando")
		r.retry(ctx, msg, job, retries+1)
		return
	}
	log.Error("erro processando job, enviando para DLQ", "permanente", IsPermanent(err))
	r.deadLetter(ctx, msg, job, err, retries)
}

func (r *RabbitMQ) retry(ctx context.Context, msg amqp.Delivery, job Job, retries int) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.publish(pubCtx, "", r.topo.queue, msg.Body, jobHeaders(job, retries)); err != nil {
		slog.Error("falha ao reenfileirar job, devolvendo a mensagem original", "path", job.Path, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// deadLetter publica na DLQ com o motivo. Se a publicação falhar, o nack
// usa o DLX da fila e a mensagem chega sem os cabeçalhos de falha.
func (r *RabbitMQ) deadLetter(ctx context.Context, msg amqp.Delivery, job Job, cause error, retries int) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	headers := failureHeaders(job, cause, retries, time.Now())
	if err := r.publish(pubCtx, r.topo.dlx, r.topo.dlq, msg.Body, headers); err != nil {
		slog.Error("falha ao publicar na DLQ, usando nack", "path", job.Path, "err", err)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func (r *RabbitMQ) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func shouldRetry(err error, retries, maxRetries int) bool {
	return !IsPermanent(err) && retries < maxRetries
}

// jobHeaders deixa tipo e origem visíveis no painel do broker.
func jobHeaders(job Job, retries int) amqp.Table {
	h := amqp.Table{HeaderRetries: int32(retries)}
	if job.Kind != "" {
		h[HeaderKind] = job.Kind
	}
	if job.Source != "" {
		h[HeaderSource] = job.Source
	}
	if job.Filename != "" {
		h[HeaderFilename] = job.Filename
	}
	return h
}

// summarizer é o erro que traz um resumo próprio, como o relatório de
// validação que reprovou o documento.
type summarizer interface {
	Summary() string
}

func failureHeaders(job Job, cause error, retries int, at time.Time) amqp.Table {
	h := jobHeaders(job, retries)
	h[HeaderFailureReason] = truncate(cause.Error(), maxReasonLen)
	h[HeaderPermanent] = IsPermanent(cause)
	h[HeaderFailedAt] = at.UTC().Format(time.RFC3339)

	var s summarizer
	if errors.As(cause, &s) {
		h[HeaderFailureSummary] = truncate(s.Summary(), maxReasonLen)
	}
	return h
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func extractRetries(h amqp.Table) int {
	switch t := h[HeaderRetries].(type) {
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float32:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}
