package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSeenSize = 4096

// seenLogs remembers recently delivered logs so overlapping polls and
// resubscriptions deliver each log once.
type seenLogs struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenLogs(size int) *seenLogs {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		cache, _ = lru.New[string, struct{}](defaultSeenSize)
	}
	return &seenLogs{cache: cache}
}

// first reports whether key has not been seen before, and records it.
func (s *seenLogs) first(key string) bool {
	seen, _ := s.cache.ContainsOrAdd(key, struct{}{})
	return !seen
}

func (c *Client) filterQuery() ethereum.FilterQuery {
	ids := make([]common.Hash, 0, len(EventNames))
	for _, name := range EventNames {
		if ev, ok := c.abi.Events[name]; ok {
			ids = append(ids, ev.ID)
		}
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{ids},
	}
}

// Watch streams decoded contract events into sink until ctx is cancelled.
// It subscribes when the transport supports notifications and polls otherwise.
func (c *Client) Watch(ctx context.Context, sink chan<- Event) error {
	q := c.filterQuery()
	logs := make(chan types.Log, 64)
	sub, err := c.backend.SubscribeFilterLogs(ctx, q, logs)
	if errors.Is(err, rpc.ErrNotificationsUnsupported) {
		c.log.Info("log subscriptions unsupported, polling", "interval", c.cfg.PollInterval)
		return c.poll(ctx, q, sink)
	}
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()
	c.log.Info("watching contract events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			return fmt.Errorf("log subscription: %w", err)
		case lg := <-logs:
			if err := c.deliver(ctx, lg, sink); err != nil {
				return err
			}
		}
	}
}

func (c *Client) poll(ctx context.Context, q ethereum.FilterQuery, sink chan<- Event) error {
	from, err := c.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("poll start: %w", err)
	}
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		head, err := c.BlockNumber(ctx)
		if err != nil {
			c.log.Warn("poll head failed", "err", err)
			continue
		}
		if head < from {
			continue
		}
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(head)
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		logs, err := c.backend.FilterLogs(callCtx, q)
		cancel()
		if err != nil {
			c.log.Warn("poll logs failed", "from", from, "to", head, "err", err)
			continue
		}
		for _, lg := range logs {
			if err := c.deliver(ctx, lg, sink); err != nil {
				return err
			}
		}
		from = head + 1
	}
}

func (c *Client) deliver(ctx context.Context, lg types.Log, sink chan<- Event) error {
	if lg.Removed {
		return nil
	}
	ev, err := DecodeLog(c.abi, lg)
	if err != nil {
		c.log.Debug("skipping log", "tx", lg.TxHash.Hex(), "err", err)
		return nil
	}
	if !c.seen.first(ev.Key()) {
		return nil
	}
	c.metrics.ObserveEvent(ev.Name)
	select {
	case sink <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DecodeLog turns a raw log into an Event using the contract ABI.
// The room id is the first integer argument whose name mentions "room",
// or the first integer argument; the player is the first address argument.
func DecodeLog(parsed abi.ABI, lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return Event{}, fmt.Errorf("%w: anonymous log", ErrUnknownEvent)
	}
	def, err := parsed.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}

	values := make(map[string]any, len(def.Inputs))
	if len(lg.Data) > 0 {
		if err := parsed.UnpackIntoMap(values, def.Name, lg.Data); err != nil {
			return Event{}, fmt.Errorf("unpack %s: %w", def.Name, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range def.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
		return Event{}, fmt.Errorf("topics %s: %w", def.Name, err)
	}

	ev := Event{
		Name:   def.Name,
		Block:  lg.BlockNumber,
		TxHash: lg.TxHash,
		Index:  lg.Index,
	}
	roomSet := false
	playerSet := false
	var ints []int64
	for _, arg := range def.Inputs {
		v, ok := values[arg.Name]
		if !ok {
			continue
		}
		if addr, isAddr := v.(common.Address); isAddr {
			if !playerSet {
				ev.Player = addr
				playerSet = true
			}
			continue
		}
		n, err := toInt64(v)
		if err != nil {
			continue
		}
		if !roomSet && strings.Contains(strings.ToLower(arg.Name), "room") {
			ev.RoomID = uint64(n)
			roomSet = true
			continue
		}
		ints = append(ints, n)
	}
	if !roomSet {
		if len(ints) == 0 {
			return Event{}, fmt.Errorf("%w: %s has no room id", ErrUnknownEvent, def.Name)
		}
		ev.RoomID = uint64(ints[0])
		ints = ints[1:]
	}
	ev.Values = ints
	return ev, nil
}
