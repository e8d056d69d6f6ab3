// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"sync"
	"time"

	"github.com/Thermoquad/otgw/pkg/opentherm"
)

type pendingCommand struct {
	cmd       *opentherm.GatewayCommand
	firstSent time.Time
	lastSent  time.Time
	attempts  int
}

// pendingCommands tracks commands awaiting an echo, oldest first.
// A newer command with the same code replaces the older one.
type pendingCommands struct {
	mu    sync.Mutex
	items []*pendingCommand
}

func (p *pendingCommands) add(cmd *opentherm.GatewayCommand, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, pc := range p.items {
		if pc.cmd.Code() == cmd.Code() {
			p.items = append(p.items[:i], p.items[i+1:]...)
			break
		}
	}
	p.items = append(p.items, &pendingCommand{cmd: cmd, firstSent: now, lastSent: now, attempts: 1})
}

// ack removes and returns the pending command with code.
func (p *pendingCommands) ack(code string) *opentherm.GatewayCommand {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, pc := range p.items {
		if pc.cmd.Code() == code {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return pc.cmd
		}
	}
	return nil
}

// popOldest removes and returns the oldest pending command. The firmware
// answers in order, so an anonymous error belongs to it.
func (p *pendingCommands) popOldest() *opentherm.GatewayCommand {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil
	}
	pc := p.items[0]
	p.items = p.items[1:]
	return pc.cmd
}

// due returns the commands to resend and removes and returns the ones that expired.
func (p *pendingCommands) due(now time.Time, responseTimeout, commandTimeout time.Duration) (resend, expired []*opentherm.GatewayCommand) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.items[:0]
	for _, pc := range p.items {
		switch {
		case now.Sub(pc.firstSent) >= commandTimeout:
			expired = append(expired, pc.cmd)
			continue
		case now.Sub(pc.lastSent) >= responseTimeout:
			pc.lastSent = now
			pc.attempts++
			resend = append(resend, pc.cmd)
		}
		kept = append(kept, pc)
	}
	for i := len(kept); i < len(p.items); i++ {
		p.items[i] = nil
	}
	p.items = kept
	return resend, expired
}

func (p *pendingCommands) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *pendingCommands) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
}
