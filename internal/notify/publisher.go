package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Channel 是发布消息用到的 amqp 方法，*amqp.Channel 满足该接口
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// DeclareQueue 声明 api 与 mail 服务共用的持久化队列
// 不自动删除，避免没有消费者时队列消失
func DeclareQueue(ch QueueDeclarer, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(name, true, false, false, false, nil)
}

// Publisher 将邮件消息投递到 mail 服务消费的队列
type Publisher struct {
	ch      Channel
	queue   string
	timeout time.Duration
}

func NewPublisher(ch Channel, queue string, timeout time.Duration) *Publisher {
	return &Publisher{ch: ch, queue: queue, timeout: timeout}
}

func (p *Publisher) Publish(msg *domain.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(ctx, "", p.queue, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// PublishRunFinished 通知发起人排班任务已结束
func (p *Publisher) PublishRunFinished(to, fullName string, run domain.Run) error {
	return p.Publish(&domain.MailMessage{
		Type: domain.MailTypeRunFinished,
		To:   to,
		Data: domain.RunFinishedMailData{
			FullName:       fullName,
			RunID:          run.ID,
			Title:          run.Title,
			Status:         run.Status,
			FitnessScore:   run.FitnessScore,
			HardViolations: run.HardViolations,
			Generations:    run.Generations,
			ElapsedSeconds: float64(run.ElapsedMillis) / 1000,
			ErrorMessage:   run.ErrorMessage,
		},
	})
}
