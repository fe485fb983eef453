package sql

import (
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/webhook"
	"github.com/uptrace/bun"
)

type subscriptionModel struct {
	bun.BaseModel `bun:"table:webhook_subscriptions"`
	Id            uuid.UUID `bun:"id,pk,type:uuid"`

	Queue  string          `bun:"queue,nullzero"`
	Events []webhook.Event `bun:"events,type:jsonb"`
	URL    string          `bun:"url,notnull"`
	Secret string          `bun:"secret,notnull"`

	Active              bool       `bun:"active,notnull,default:true"`
	ConsecutiveFailures uint32     `bun:"consecutive_failures,notnull,default:0"`
	DisabledAt          *time.Time `bun:"disabled_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m *subscriptionModel) toSubscription() *webhook.Subscription {
	return &webhook.Subscription{
		Id:                  m.Id,
		Queue:               m.Queue,
		Events:              m.Events,
		URL:                 m.URL,
		Secret:              m.Secret,
		Active:              m.Active,
		ConsecutiveFailures: m.ConsecutiveFailures,
		DisabledAt:          m.DisabledAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func fromSubscription(sub *webhook.Subscription) *subscriptionModel {
	now := time.Now()
	id := sub.Id
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &subscriptionModel{
		Id:                  id,
		Queue:               sub.Queue,
		Events:              sub.Events,
		URL:                 sub.URL,
		Secret:              sub.Secret,
		Active:              true,
		ConsecutiveFailures: 0,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

type deliveryModel struct {
	bun.BaseModel  `bun:"table:webhook_deliveries"`
	Id             uuid.UUID `bun:"id,pk,type:uuid"`
	SubscriptionId uuid.UUID `bun:"subscription_id,notnull,type:uuid"`

	Event   webhook.Event `bun:"event,notnull"`
	JobId   uuid.UUID     `bun:"job_id,type:uuid"`
	Payload []byte        `bun:"payload,type:blob"`

	Attempt      uint32                 `bun:"attempt,notnull,default:0"`
	Status       webhook.DeliveryStatus `bun:"status,notnull,default:0"`
	ResponseCode int                    `bun:"response_code,notnull,default:0"`
	Error        string                 `bun:"error,nullzero"`

	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	DeliveredAt *time.Time `bun:"delivered_at,nullzero"`
}

func (m *deliveryModel) toDelivery() *webhook.Delivery {
	return &webhook.Delivery{
		Id:             m.Id,
		SubscriptionId: m.SubscriptionId,
		Event:          m.Event,
		JobId:          m.JobId,
		Payload:        m.Payload,
		Attempt:        m.Attempt,
		Status:         m.Status,
		ResponseCode:   m.ResponseCode,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
		DeliveredAt:    m.DeliveredAt,
	}
}

func fromDelivery(d *webhook.Delivery) *deliveryModel {
	return &deliveryModel{
		Id:             d.Id,
		SubscriptionId: d.SubscriptionId,
		Event:          d.Event,
		JobId:          d.JobId,
		Payload:        d.Payload,
		Attempt:        d.Attempt,
		Status:         d.Status,
		ResponseCode:   d.ResponseCode,
		Error:          d.Error,
		CreatedAt:      d.CreatedAt,
		DeliveredAt:    d.DeliveredAt,
	}
}
