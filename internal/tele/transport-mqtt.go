package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/wolkabout/wolkconnect-go/log2"
)

const disconnectQuiesceMs = 250

type transportMqtt struct {
	log     *log2.Log
	opt     TransportOptions
	qos     byte
	timeout time.Duration
	m       mqtt.Client
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, opt TransportOptions) error {
	self.log = log
	self.opt = opt
	cfg := &opt.Config

	mqttLog := log.Clone(log2.LInfo)
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog
	if cfg.LogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = mqttLog
	}

	if _, err := url.ParseRequestURI(cfg.Broker); err != nil {
		return errors.Annotatef(err, "mqtt broker=%s", cfg.Broker)
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return errors.NotValidf("mqtt qos=%d", cfg.QoS)
	}
	self.qos = byte(cfg.QoS)
	self.timeout = cfg.NetworkTimeout()
	if self.timeout < time.Second {
		self.timeout = time.Second
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wolk-" + uuid.NewString()
	}
	credFun := func() (string, string) {
		return opt.Username, opt.Password
	}

	tlsconf := &tls.Config{InsecureSkipVerify: cfg.TLSInsecure} //nolint:gosec
	if cfg.TLSCAFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return errors.Annotatef(err, "TLS")
		}
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return errors.NotValidf("TLS CA file=%s", cfg.TLSCAFile)
		}
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetCredentialsProvider(credFun).
		SetCleanSession(true).
		SetKeepAlive(cfg.Keepalive()).
		SetPingTimeout(self.timeout).
		SetConnectTimeout(self.timeout).
		SetWriteTimeout(self.timeout).
		SetOrderMatters(false).
		SetTLSConfig(tlsconf).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(self.timeout / 2).
		SetDefaultPublishHandler(self.messageHandler).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	if opt.WillTopic != "" {
		mopt.SetBinaryWill(opt.WillTopic, opt.WillPayload, self.qos, false)
	}
	if cfg.StorePath != "" {
		mopt.SetStore(mqtt.NewFileStore(cfg.StorePath))
	}
	self.m = mqtt.NewClient(mopt)
	self.log.Infof("mqtt connecting broker=%s client_id=%s", cfg.Broker, clientID)
	// with connect retry token completes only on success or Disconnect
	_ = self.m.Connect()
	return nil
}

func (self *transportMqtt) Connected() bool {
	return self.m != nil && self.m.IsConnectionOpen()
}

func (self *transportMqtt) Publish(topic string, payload []byte) error {
	if !self.Connected() {
		return ErrNotConnected
	}
	token := self.m.Publish(topic, self.qos, false, payload)
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", topic)
	}
	return errors.Annotatef(token.Error(), "mqtt publish topic=%s", topic)
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	for _, topic := range self.opt.Subscribe {
		if token := self.m.Unsubscribe(topic); token.WaitTimeout(self.timeout) && token.Error() != nil {
			self.log.Errorf("mqtt unsubscribe topic=%s err=%v", topic, token.Error())
		}
	}
	self.m.Disconnect(disconnectQuiesceMs)
	self.log.Infof("mqtt disconnected")
}

func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	self.log.Debugf("mqtt income topic=%s payload=%q", msg.Topic(), msg.Payload())
	if self.opt.OnMessage != nil {
		self.opt.OnMessage(msg.Topic(), msg.Payload())
	}
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Errorf("mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	for _, topic := range self.opt.Subscribe {
		token := c.Subscribe(topic, self.qos, nil)
		if token.WaitTimeout(self.timeout) && token.Error() == nil {
			self.log.Debugf("mqtt subscribe topic=%s", topic)
			continue
		}
		self.log.Errorf("mqtt subscribe topic=%s err=%v", topic, token.Error())
	}
	if self.opt.OnConnect != nil {
		self.opt.OnConnect()
	}
}
