package main

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/logger"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/notify"
)

func main() {
	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法读取配置文件: %v\n", err)
		os.Exit(1)
	}

	/**********************************************
	 * 创建 logger
	 **********************************************/
	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法创建 logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	/**********************************************
	 * 解析邮件模板
	 **********************************************/
	templates := map[string]*template.Template{}
	for mailType, path := range map[string]string{
		domain.MailTypeRunFinished: "./templates/run_finished_email.html",
	} {
		tmpl, err := template.ParseFiles(path)
		if err != nil {
			log.Error("无法解析邮件模板", zap.String("path", path), zap.Error(err))
			return
		}
		templates[mailType] = tmpl
	}

	/**********************************************
	 * 创建邮件客户端
	 **********************************************/
	client, err := mail.NewClient(cfg.Email.SMTP.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTP.Port),
		mail.WithUsername(cfg.Email.SMTP.Username),
		mail.WithPassword(cfg.Email.SMTP.Password),
	)
	if err != nil {
		log.Error("无法创建邮件客户端", zap.Error(err))
		return
	}
	defer client.Close()

	// 验证邮件客户端是否连接成功
	clientDialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second)
	defer cancel()
	if err := client.DialWithContext(clientDialCtx); err != nil {
		log.Error("无法连接到邮件服务器", zap.Error(err))
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		log.Error("无法连接到 RabbitMQ", zap.Error(err))
		return
	}
	defer conn.Close()

	// 创建通道
	ch, err := conn.Channel()
	if err != nil {
		log.Error("无法创建通道", zap.Error(err))
		return
	}
	defer ch.Close()

	// 声明队列
	q, err := notify.DeclareQueue(ch, cfg.RabbitMQ.Queue)
	if err != nil {
		log.Error("无法声明队列", zap.Error(err))
		return
	}

	// 监听 CTRL+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 消费消息
	msgs, err := ch.Consume(
		q.Name, // 队列
		"",     // 消费者标识，设置为空字符串，表示由 RabbitMQ 自动分配
		false,  // 是否自动确认消息
		false,  // 是否独占队列
		false,  // 必须设置为 false，因为 RabbitMQ 不支持这个参数
		false,  // 是否不等待，等待 RabbitMQ 响应
		nil,    // 额外参数
	)
	if err != nil {
		log.Error("无法消费消息", zap.Error(err))
		return
	}

	// 用于关闭 goroutine 的上下文
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn("消息通道已关闭")
					return
				}

				// 对邮件信息反序列化
				mailMessage, err := notify.DecodeMailMessage(msg.Body)
				if err != nil {
					log.Error("邮件信息反序列化失败", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				log.Info("收到消息", zap.String("type", mailMessage.Type), zap.String("to", mailMessage.To))

				tmpl, ok := templates[mailMessage.Type]
				if !ok {
					log.Error("不支持的邮件类型", zap.String("type", mailMessage.Type))
					_ = msg.Nack(false, false)
					continue
				}

				// 构建邮件
				m := mail.NewMsg()
				if err := m.From(cfg.Email.SMTP.Username); err != nil {
					log.Error("无法设置邮件发件人", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				if err := m.To(mailMessage.To); err != nil {
					log.Error("无法设置邮件收件人", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				if err := m.SetBodyHTMLTemplate(tmpl, mailMessage.Data); err != nil {
					log.Error("无法设置邮件正文", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				m.Subject(notify.Subject(mailMessage))

				// 发送邮件
				if err := client.DialAndSend(m); err != nil {
					log.Error("邮件发送失败", zap.Error(err))
					_ = msg.Nack(false, true) // 将消息重新入队
					continue
				}

				// 确认消息
				_ = msg.Ack(false)
			}
		}
	}()

	// 等待 CTRL+C 信号
	log.Info("等待消息...（按 CTRL+C 退出）")
	<-sigChan

	// 优雅退出
	log.Info("正在关闭 mail worker...")
	cancel()
	wg.Wait() // 等待所有 goroutine 完成
	log.Info("mail worker 已成功关闭")
}
