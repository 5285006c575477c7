package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 3 * time.Second

// MqttPublisher 把订单/捐款状态变化发给后台，topic 为 <prefix>/<kind>/<trade_no>
type MqttPublisher struct {
	config   config.MqttConfig
	mqClient mqtt.Client
}

func NewMqttPublisher(cfg config.MqttConfig) *MqttPublisher {
	return &MqttPublisher{config: cfg}
}

// Start 连接 broker，断线由客户端自动重连
func (p *MqttPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true) // 开启自动重连
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(5 * time.Second) //最多隔5秒重试一次
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		slog.Debug("mqtt 连接成功！")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		slog.Warn("mqtt client disconnected. trying to reconnect...", "error", err)
	})

	p.mqClient = mqtt.NewClient(opts)
	if token := p.mqClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt client failed: %v", token.Error())
	}
	return nil
}

func (p *MqttPublisher) Stop() {
	if p.mqClient != nil {
		p.mqClient.Disconnect(250)
	}
}

func (p *MqttPublisher) topicFor(evt StatusEvent) string {
	return fmt.Sprintf("%s/%s/%s", p.config.Topic, evt.Kind, evt.TradeNo)
}

// Publish 实现 EventSink，QoS 1
func (p *MqttPublisher) Publish(evt StatusEvent) error {
	if p.mqClient == nil {
		return fmt.Errorf("mqtt client not initialized")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	token := p.mqClient.Publish(p.topicFor(evt), 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish timeout, topic=%s", p.topicFor(evt))
	}
	return token.Error()
}
