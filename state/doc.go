// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package state turns a batch of account changes into a new state root.
// It follows the flow as bellow:
//
//	[ changed state ] -> [ storage tries (parallel) ] -> [ account trie ] -> [ patch ] -> [ storage ]
//
// Nothing is written until the whole batch is staged, and the patch is
// written in one batch, so a failed flush leaves the storage untouched.
package state
