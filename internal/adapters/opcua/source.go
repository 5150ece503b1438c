package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	// Nodes maps one node to each probe channel, in channel order.
	Nodes []string `yaml:"nodes"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "ProbeFlow Agent"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	return nil
}

// Source subscribes to one node per channel and emits a RawEvent carrying
// the latest value of every channel on each data change.
type Source struct {
	cfg   Config
	clock ports.Clock
	obs   ports.Observability

	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	latest  []float32
}

func NewSource(cfg Config, clk ports.Clock, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil || obs == nil {
		return nil, errors.New("opcua source: clock and observability are required")
	}
	return &Source{
		cfg:    cfg,
		clock:  clk,
		obs:    obs,
		latest: make([]float32, len(cfg.Nodes)),
	}, nil
}

func (s *Source) Start(out chan<- *domain.RawEvent) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("opcua source already started")
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: s.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	for i, node := range s.cfg.Nodes {
		if err := s.monitor(ctx, sub, node, uint32(i+1)); err != nil {
			cancel()
			_ = sub.Cancel(ctx)
			_ = client.Close(ctx)
			return err
		}
	}

	s.mu.Lock()
	s.client = client
	s.sub = sub
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx, notifyCh, out)
	return nil
}

func (s *Source) monitor(ctx context.Context, sub *opcua.Subscription, node string, handle uint32) error {
	nodeID, err := ua.ParseNodeID(node)
	if err != nil {
		return fmt.Errorf("parse node id %q: %w", node, err)
	}
	req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
	if s.cfg.SamplingInterval > 0 {
		req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
	}
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("monitor node %q: %w", node, err)
	}
	if len(res.Results) == 0 {
		return fmt.Errorf("monitor node %q failed: empty result", node)
	}
	if res.Results[0].StatusCode != ua.StatusOK {
		return fmt.Errorf("monitor node %q failed: %s", node, res.Results[0].StatusCode)
	}
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel, sub, client := s.cancel, s.sub, s.client
	s.started = false
	s.cancel, s.sub, s.client = nil, nil, nil
	s.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	s.wg.Wait()
	return err
}

func (s *Source) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.RawEvent) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				s.obs.LogError("opcua_notification_failed", notif.Error, ports.Field{Key: "endpoint", Value: s.cfg.Endpoint})
				continue
			}
			data, ok := notif.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			ev := s.applyDataChange(data)
			if ev == nil {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}
}

// applyDataChange folds a notification into the latest channel values and
// returns an event stamped with the newest source timestamp, or nil when no
// item carried a usable value.
func (s *Source) applyDataChange(data *ua.DataChangeNotification) *domain.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ts      time.Time
		updated bool
	)
	for _, item := range data.MonitoredItems {
		if item == nil || item.Value == nil {
			continue
		}
		idx := int(item.ClientHandle) - 1
		if idx < 0 || idx >= len(s.latest) {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			typ := "nil"
			if item.Value.Value != nil {
				typ = fmt.Sprintf("%T", item.Value.Value.Value())
			}
			s.obs.LogWarn("opcua_unsupported_value",
				ports.Field{Key: "node", Value: s.cfg.Nodes[idx]},
				ports.Field{Key: "type", Value: typ})
			continue
		}
		s.latest[idx] = float32(fv)
		updated = true

		itemTs := item.Value.SourceTimestamp
		if itemTs.IsZero() {
			itemTs = item.Value.ServerTimestamp
		}
		if itemTs.After(ts) {
			ts = itemTs
		}
	}
	if !updated {
		return nil
	}

	// place the event on the boot clock so reconciliation maps it back to ts
	boot := s.clock.SinceBoot()
	if !ts.IsZero() {
		boot -= s.clock.Now().Sub(ts)
	}
	return &domain.RawEvent{
		BootNanos: boot.Nanoseconds(),
		Values:    append([]float32(nil), s.latest...),
		Accuracy:  3,
	}
}

func (s *Source) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.EventSource = (*Source)(nil)
