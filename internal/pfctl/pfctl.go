/*
 * MIT License
 *
 * Copyright (c) 2024 InnoGames GmbH
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package pfctl adapts the five logical filter operations from spec.md
// §6 onto an external packet-filter CLI tool (a pfctl-alike), shelling
// out via os/exec rather than linking any in-process filter API — the
// spec explicitly treats the filter's own table semantics as outside
// this driver's scope; the driver only issues commands and parses their
// output.
package pfctl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/innogames/testtool-sub000/internal/logger"
)

// Client issues table_add/table_del/table_show/kill_src_nodes_to/
// kill_states_to_rdr against a configured pfctl-compatible binary.
type Client struct {
	binary string
	log    logger.Logger
}

// New builds a Client that shells out to binary (e.g. "pfctl").
func New(binary string, log logger.Logger) *Client {
	return &Client{binary: binary, log: log}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pfctl: %s %v: %w: %s", c.binary, args, err, stderr.String())
	}
	return stdout.String(), nil
}

// TableAdd adds addresses to table.
func (c *Client) TableAdd(ctx context.Context, table string, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	args := append([]string{"-t", table, "-T", "add"}, addresses...)
	_, err := c.run(ctx, args...)
	return err
}

// TableDel removes addresses from table.
func (c *Client) TableDel(ctx context.Context, table string, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	args := append([]string{"-t", table, "-T", "delete"}, addresses...)
	_, err := c.run(ctx, args...)
	return err
}

// TableShow returns the table's current members. It does not create an
// absent table: the command's error is returned. Any line that is not a
// valid IP literal is logged and dropped (spec.md §6).
func (c *Client) TableShow(ctx context.Context, table string) ([]string, error) {
	out, err := c.run(ctx, "-t", table, "-T", "show")
	if err != nil {
		return nil, err
	}
	var addrs []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if net.ParseIP(line) == nil {
			if c.log != nil {
				c.log.Warn(fmt.Sprintf("pfctl: dropping non-IP table_show line %q", line), logger.Fields{})
			}
			continue
		}
		addrs = append(addrs, line)
	}
	return addrs, nil
}

// KillSrcNodesTo tears down source-node state pinned to address in
// table, optionally also resetting its active states.
func (c *Client) KillSrcNodesTo(ctx context.Context, table, address string, alsoResetStates bool) error {
	args := []string{"-t", table, "-s", address, "-K"}
	if alsoResetStates {
		args = append(args, "-F", "state")
	}
	_, err := c.run(ctx, args...)
	return err
}

// KillStatesToRdr resets redirected states pointing at address in table;
// this operation always implies a reset per spec.md §6.
func (c *Client) KillStatesToRdr(ctx context.Context, table, address string) error {
	_, err := c.run(ctx, "-t", table, "-r", address, "-K", "-F", "state")
	return err
}
