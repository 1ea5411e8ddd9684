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

package env_test

import (
	"testing"

	"github.com/innogames/testtool-sub000/internal/env"
	"github.com/innogames/testtool-sub000/internal/pool"
)

func TestPoolIndexResolvesByName(t *testing.T) {
	idx := env.NewPoolIndex()
	p := pool.New("web", "web_table", 1, 0, pool.ForceDown, "", idx, nil)
	idx.Add(p)

	got, ok := idx.Pool("web")
	if !ok || got != p {
		t.Fatalf("expected to resolve %q back to the same pool", "web")
	}
	if _, ok := idx.Pool("missing"); ok {
		t.Fatal("expected lookup of an unknown pool name to fail")
	}
}

func TestPoolIndexPreservesRegistrationOrder(t *testing.T) {
	idx := env.NewPoolIndex()
	names := []string{"c", "a", "b"}
	for _, n := range names {
		idx.Add(pool.New(n, n+"_table", 0, 0, pool.ForceDown, "", idx, nil))
	}
	all := idx.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 pools, got %d", len(all))
	}
	for i, n := range names {
		if all[i].Name != n {
			t.Fatalf("expected registration order %v, got %q at index %d", names, all[i].Name, i)
		}
	}
}

func TestNewBundlesDependencies(t *testing.T) {
	idx := env.NewPoolIndex()
	e := env.New(nil, nil, idx)
	if e.Clock == nil {
		t.Fatal("expected New to provide a real clock")
	}
	if e.Pools != idx {
		t.Fatal("expected Pools to be the index passed to New")
	}
}
