// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

// RefEntry 参考列表项，要么引用一帧图像，要么为空
type RefEntry struct {
	pic *Picture
}

// None 空的参考列表项
var None = RefEntry{}

// Some .
func Some(p *Picture) RefEntry {
	return RefEntry{pic: p}
}

// Get 返回引用的图像
func (e RefEntry) Get() (*Picture, bool) {
	return e.pic, e.pic != nil
}

// IsSome .
func (e RefEntry) IsSome() bool {
	return e.pic != nil
}

// RefLists L0 和 L1 参考列表，长度等于各自的 num_ref_idx_active
type RefLists [2][]RefEntry

// Usable 列表中有效项的数量
func (l *RefLists) Usable(list int) int {
	n := 0
	for _, e := range l[list] {
		if e.IsSome() {
			n++
		}
	}
	return n
}

// Complete 每个列表都填满了有效项
func (l *RefLists) Complete() bool {
	return l.Usable(0) == len(l[0]) && l.Usable(1) == len(l[1])
}

// IDs 列表中图像的节点 id，空项为 -1
func (l *RefLists) IDs(list int) []int64 {
	ids := make([]int64, len(l[list]))
	for i, e := range l[list] {
		ids[i] = -1
		if p, ok := e.Get(); ok {
			ids[i] = p.ID
		}
	}
	return ids
}

// fit 截断或以 None 填充到 n 项
func fit(entries []RefEntry, n int) []RefEntry {
	if len(entries) >= n {
		return entries[:n]
	}
	for len(entries) < n {
		entries = append(entries, None)
	}
	return entries
}
