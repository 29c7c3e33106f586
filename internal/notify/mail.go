package notify

import (
	"encoding/json"
	"fmt"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// DecodeMailMessage 按消息类型将 data 解码为对应的结构体
func DecodeMailMessage(body []byte) (*domain.MailMessage, error) {
	var raw struct {
		Type string          `json:"type"`
		To   string          `json:"to"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	msg := &domain.MailMessage{Type: raw.Type, To: raw.To}
	switch raw.Type {
	case domain.MailTypeRunFinished:
		var data domain.RunFinishedMailData
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return nil, err
		}
		msg.Data = data
	default:
		return nil, fmt.Errorf("不支持的邮件类型: %s", raw.Type)
	}

	return msg, nil
}

// Subject 返回邮件标题
func Subject(msg *domain.MailMessage) string {
	switch data := msg.Data.(type) {
	case domain.RunFinishedMailData:
		return fmt.Sprintf("ECNC 排课系统 - 排班任务「%s」%s", data.Title, data.StatusLabel())
	}
	return "ECNC 排课系统"
}
