// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
)

// 隐藏策略。触发条件：
//  a. 片头无效
//  b. SPS 与通道设置不兼容
//  c. 参考列表不完整且没有恢复点
//  d. 片数达到上限而访问单元还没结束
// 隐藏片沿用最后有效的 PPS/SPS，由引擎用参考帧填充；帧带告警继续解码。
// 会话中还没有有效图像时直接丢弃 NAL。

// concealInvalid 处理无效的片 (a/b)。没有正在组装的帧时，start 用替代的
// 参数集开始一个整帧隐藏的图像，返回 false 表示没有可用的参数。
// first 表示片头显示它是图像的第一个片。
func (c *Context) concealInvalid(err error, first, last bool, start func() (bool, error)) error {
	c.lastErr = err
	f := &c.frame
	if f.state != accumulating {
		if !c.firstValid {
			c.drop(err, "no valid picture yet: %v", err)
			return nil
		}
		if c.capped {
			if !first {
				// 片数上限之后同一图像的剩余片
				c.drop(err, "slice after the slice cap: %v", err)
				return nil
			}
			c.capped = false
		}
		ok, serr := start()
		if serr != nil {
			return serr
		}
		if !ok {
			c.drop(err, "no parameter sets to conceal with: %v", err)
			return nil
		}
		f.whole = true
	}

	c.logger.Warnf("slice concealed: %v", err)
	total := f.job.Pic.NumUnits()
	if c.atCap() && !last {
		return c.concealRest(f.nextUnit)
	}
	if f.nextUnit >= total {
		f.concealed = true
		return nil
	}
	c.addSlice(SliceParam{Type: codec.SliceConceal, FirstUnit: f.nextUnit})
	return nil
}

// concealHead 图像的第一个片不在地址 0 时，隐藏前面丢失的部分
func (c *Context) concealHead(first int) {
	f := &c.frame
	if f.nextUnit == 0 && first > 0 {
		c.addSlice(SliceParam{Type: codec.SliceConceal, FirstUnit: 0, NumUnits: first})
	}
}

// pushSlice 追加一个有效片 (c/d)
func (c *Context) pushSlice(s *slice, listsOK bool, last bool) error {
	f := &c.frame
	sp := s.param()
	switch {
	case f.whole:
		// 整帧隐藏的图像里的有效片也隐藏
		sp = SliceParam{Type: codec.SliceConceal, FirstUnit: s.firstUnit}
	case !listsOK:
		c.report(codec.WarnRefListIncomplete)
		if c.recoveryCnt == 0 {
			c.logger.Warnf("slice at %d concealed: reference list incomplete", s.firstUnit)
			sp = SliceParam{Type: codec.SliceConceal, FirstUnit: s.firstUnit}
		}
	}

	if c.atCap() && !last {
		c.report(codec.WarnStreamOverflow)
		c.logger.Warnf("slice cap %d reached at unit %d", c.v.maxSlices(), s.firstUnit)
		return c.concealRest(s.firstUnit)
	}
	c.addSlice(sp)
	return nil
}

// concealRest 隐藏从 first 到帧尾的部分并结束帧，图像剩余的片将被丢弃
func (c *Context) concealRest(first int) error {
	f := &c.frame
	if total := f.job.Pic.NumUnits(); first < total {
		c.addSlice(SliceParam{Type: codec.SliceConceal, FirstUnit: first, NumUnits: total - first})
	}
	f.concealed = true
	c.capped = true
	return c.endFrame()
}
