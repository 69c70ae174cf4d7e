package upscaledb

// This file is a direct structural port of original_source/src/btree_erase.c
// (my_erase_recursive / my_rebalance / my_merge_pages / my_shift_pages /
// my_remove_entry / my_copy_key / my_replace_key / my_collapse_root),
// adapted to Tree/Node/PageCache and to Go recursion in place of the
// original's explicit C call-stack recursion (§4.D).

// eraseScratchpad threads state from the leaf back up to the root the
// same way erase_scratchpad_t does: the key being deleted, the found
// record, and which page (if any) is a rebalance candidate. txID is the
// transaction the whole erase runs under; freed collects every page
// vacated along the way so Delete can hand them back to the PageCache
// only after that transaction commits.
type eraseScratchpad struct {
	key             []byte
	foundInline     bool
	foundInlineData []byte
	foundRecordID   uint64
	mergepage       PageAddress
	txID            uint64
	freed           []PageAddress
}

// freePage enqueues addr with the transaction log instead of freeing it
// from the cache immediately (§4.F: the transaction layer's free_page
// owns release scheduling; erase never deallocates directly).
func (t *Tree) freePage(sp *eraseScratchpad, addr PageAddress) {
	t.log.FreePage(sp.txID, addr)
	sp.freed = append(sp.freed, addr)
}

// releaseFreedPages hands every page sp.freePage queued during this
// transaction back to the PageCache now that the transaction log has
// committed the release.
func (t *Tree) releaseFreedPages(sp *eraseScratchpad) error {
	for _, addr := range sp.freed {
		if err := t.cache.Free(addr); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from the tree, rebalancing on the way back up and
// collapsing the root if it becomes a single-child internal node. The
// whole operation runs under one transaction: every page a merge or
// root-collapse vacates is queued with the transaction log and only
// released to the PageCache once that transaction commits.
func (t *Tree) Delete(key []byte) error {
	rootAddr := t.Root()
	root, err := t.node(rootAddr)
	if err != nil {
		return err
	}

	txID, err := t.log.Begin()
	if err != nil {
		return err
	}

	sp := &eraseScratchpad{key: key, txID: txID}
	newRoot, err := t.eraseRecursive(root, 0, 0, 0, 0, nil, sp)
	if err != nil {
		_ = t.log.Abort(txID)
		return err
	}

	if !sp.foundInline && sp.foundRecordID != 0 && t.blobs != nil {
		_ = t.blobs.Delete(sp.foundRecordID)
	}

	if newRoot != nil {
		newRoot.Page().Type = PageTypeBTreeRoot
		t.cache.Put(newRoot.Page())
		t.setRoot(newRoot.Page().Addr)
		t.freePage(sp, rootAddr)
	}

	if err := t.log.Commit(txID); err != nil {
		return err
	}
	return t.releaseFreedPages(sp)
}

// eraseRecursive mirrors my_erase_recursive: descend to the leaf holding
// key, remove it, then unwind rebalancing every ancestor whose child
// count dropped below the fill threshold. left/right/lanchor/ranchor
// are the same-level neighbor and anchor addresses threaded down from
// the caller; parent is nil only at the true root.
func (t *Tree) eraseRecursive(page *Node, left, right, lanchor, ranchor PageAddress, parent *Node, sp *eraseScratchpad) (*Node, error) {
	if page.Count() == 0 {
		return nil, ErrKeyNotFound
	}

	var isFew bool
	if page.Page().Addr == t.Root() {
		isFew = page.Count() > 1
	} else {
		isFew = page.Count() > t.opts.MinKeys()
	}
	if isFew {
		sp.mergepage = 0
	} else if sp.mergepage == 0 {
		sp.mergepage = page.Page().Addr
	}

	slot, _, err := t.searchNode(page, sp.key)
	if err != nil {
		return nil, err
	}

	var newme *Node
	if !page.IsLeaf() {
		child := childAt(page, slot)

		var nextLeft, nextRight, nextLanchor, nextRanchor PageAddress
		if slot == -1 {
			if left == 0 {
				nextLeft = 0
			} else {
				lp, err := t.node(left)
				if err != nil {
					return nil, err
				}
				nextLeft = lp.ChildAt(lp.Count() - 1)
			}
			nextLanchor = lanchor
		} else {
			if slot == 0 {
				nextLeft = page.PtrLeft()
			} else {
				nextLeft = page.ChildAt(slot - 1)
			}
			nextLanchor = page.Page().Addr
		}

		if slot == page.Count()-1 {
			if right == 0 {
				nextRight = 0
			} else {
				rp, err := t.node(right)
				if err != nil {
					return nil, err
				}
				nextRight = rp.PtrLeft()
			}
			nextRanchor = ranchor
		} else {
			nextRight = page.ChildAt(slot + 1)
			nextRanchor = page.Page().Addr
		}

		childNode, err := t.node(child)
		if err != nil {
			return nil, err
		}
		newme, err = t.eraseRecursive(childNode, nextLeft, nextRight, nextLanchor, nextRanchor, page, sp)
		if err != nil {
			return nil, err
		}
	} else {
		if slot == -1 {
			return nil, ErrKeyNotFound
		}
		cmp, err := compareKeys(plainKeyRef(sp.key), slotKeyRef(page, slot), t.resolver)
		if err != nil {
			return nil, err
		}
		if cmp != 0 {
			return nil, ErrKeyNotFound
		}
		if page.HasInlineRecord(slot) {
			sp.foundInline = true
			sp.foundInlineData = page.InlineRecordBytes(slot)
		} else {
			sp.foundInline = false
			sp.foundRecordID = page.RecordID(slot)
		}
		newme = page
	}

	if newme != nil {
		if slot == -1 {
			slot = 0
		}
		if err := t.removeEntry(page, slot); err != nil {
			return nil, err
		}
	}

	return t.rebalance(page, left, right, lanchor, ranchor, parent, sp)
}

// rebalance mirrors my_rebalance: choose between doing nothing, merging
// page with a sibling, or shifting keys between page and a sibling,
// based on which neighbors are underfull and which side's anchor sits
// closer to parent.
func (t *Tree) rebalance(page *Node, left, right, lanchor, ranchor PageAddress, parent *Node, sp *eraseScratchpad) (*Node, error) {
	if sp.mergepage == 0 {
		return nil, nil
	}
	minKeys := t.opts.MinKeys()

	var parentAddr PageAddress
	if parent != nil {
		parentAddr = parent.Page().Addr
	}

	var leftPage, rightPage *Node
	var fewLeft, fewRight bool
	if left != 0 {
		lp, err := t.node(left)
		if err != nil {
			return nil, err
		}
		leftPage = lp
		fewLeft = leftPage.Count() <= minKeys
	}
	if right != 0 {
		rp, err := t.node(right)
		if err != nil {
			return nil, err
		}
		rightPage = rp
		fewRight = rightPage.Count() <= minKeys
	}

	if leftPage == nil && rightPage == nil {
		if page.IsLeaf() {
			return nil, nil
		}
		return t.node(page.PtrLeft())
	}

	if (leftPage == nil || fewLeft) && (rightPage == nil || fewRight) {
		if lanchor != parentAddr {
			return t.mergePages(page, rightPage, ranchor, sp)
		}
		return t.mergePages(leftPage, page, lanchor, sp)
	}

	if leftPage != nil && fewLeft && rightPage != nil && !fewRight {
		if ranchor != parentAddr && page.Page().Addr == sp.mergepage {
			return t.mergePages(leftPage, page, lanchor, sp)
		}
		return t.shiftPages(page, rightPage, ranchor, sp)
	}

	if leftPage != nil && !fewLeft && rightPage != nil && fewRight {
		if lanchor != parentAddr && page.Page().Addr == sp.mergepage {
			return t.mergePages(page, rightPage, ranchor, sp)
		}
		return t.shiftPages(leftPage, page, lanchor, sp)
	}

	if lanchor == ranchor {
		if leftPage.Count() <= rightPage.Count() {
			return t.shiftPages(page, rightPage, ranchor, sp)
		}
		return t.shiftPages(leftPage, page, lanchor, sp)
	}

	if lanchor == parentAddr {
		return t.shiftPages(leftPage, page, lanchor, sp)
	}
	return t.shiftPages(page, rightPage, ranchor, sp)
}

// uncoupleAll converts every cursor coupled to addr into the uncoupled
// state, called before any structural mutation of that page.
func (t *Tree) uncoupleAll(addr PageAddress) error {
	for _, c := range t.cursorsOn(addr) {
		if err := c.uncoupleFromPage(); err != nil {
			return err
		}
	}
	return nil
}

// copyKey duplicates the entire slot at (src, srcIdx) into (dst,
// dstIdx), including its ptr field. An extended key's blob is copied
// rather than shared (§ Supplemented features: no refcounting).
func (t *Tree) copyKey(dst *Node, dstIdx int, src *Node, srcIdx int) error {
	CopySlotContent(dst, dstIdx, src, srcIdx)
	if src.IsExtended(srcIdx) {
		if t.blobs == nil {
			return ErrIoFailure
		}
		data, err := t.blobs.Get(src.SlotBlobID(srcIdx))
		if err != nil {
			return err
		}
		newID, err := t.blobs.Put(data)
		if err != nil {
			return err
		}
		dst.SetSlotBlobID(dstIdx, newID)
	}
	t.cache.Put(dst.Page())
	return nil
}

// replaceKey overwrites only the key content (flags, key bytes, size)
// at (dst, dstIdx) with the key at (src, srcIdx), leaving dst's ptr
// field untouched. When internal is true the leaf-only record flags
// are stripped, mirroring my_replace_key's INTERNAL_KEY handling.
func (t *Tree) replaceKey(dst *Node, dstIdx int, src *Node, srcIdx int, internal bool) error {
	if dst.IsExtended(dstIdx) {
		blobID := dst.SlotBlobID(dstIdx)
		if t.blobs != nil {
			_ = t.blobs.Delete(blobID)
		}
		if t.extCache != nil {
			t.extCache.Remove(blobID)
		}
	}
	dst.SetSlotFlags(dstIdx, src.SlotFlags(srcIdx))
	copy(dst.SlotKeyBytes(dstIdx), src.SlotKeyBytes(srcIdx))
	if internal {
		dst.StripRecordFlags(dstIdx)
	}
	if src.IsExtended(srcIdx) {
		if t.blobs == nil {
			return ErrIoFailure
		}
		data, err := t.blobs.Get(src.SlotBlobID(srcIdx))
		if err != nil {
			return err
		}
		newID, err := t.blobs.Put(data)
		if err != nil {
			return err
		}
		dst.SetSlotBlobID(dstIdx, newID)
	}
	dst.SetSlotSize(dstIdx, src.SlotSize(srcIdx))
	t.cache.Put(dst.Page())
	return nil
}

// removeEntry mirrors my_remove_entry: frees the slot's extended blob
// (if any) and shifts the tail of the slot array left by one.
func (t *Tree) removeEntry(page *Node, slot int) error {
	if err := t.uncoupleAll(page.Page().Addr); err != nil {
		return err
	}
	if page.IsExtended(slot) {
		blobID := page.SlotBlobID(slot)
		if t.blobs != nil {
			_ = t.blobs.Delete(blobID)
		}
		if t.extCache != nil {
			t.extCache.Remove(blobID)
		}
	}
	count := page.Count()
	if slot != count-1 {
		page.CopySlotRange(slot, slot+1, count-slot-1)
	}
	page.SetCount(count - 1)
	t.cache.Put(page.Page())
	return nil
}

// mergePages mirrors my_merge_pages: append sibling's contents (plus,
// for internal nodes, the anchor separator between them) onto page,
// splice the sibling out of the level's linked list, and free it.
// Returns sibling, signalling that a page was deleted: eraseRecursive
// at the level above page and sibling removes its separator there.
func (t *Tree) mergePages(page, sibling *Node, anchor PageAddress, sp *eraseScratchpad) (*Node, error) {
	var ancNode *Node
	if anchor != 0 {
		an, err := t.node(anchor)
		if err != nil {
			return nil, err
		}
		ancNode = an
	}

	if err := t.uncoupleAll(page.Page().Addr); err != nil {
		return nil, err
	}
	if err := t.uncoupleAll(sibling.Page().Addr); err != nil {
		return nil, err
	}
	if ancNode != nil {
		if err := t.uncoupleAll(ancNode.Page().Addr); err != nil {
			return nil, err
		}
	}

	if !page.IsLeaf() {
		idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(sibling, 0))
		if err != nil {
			return nil, err
		}
		dst := page.Count()
		if err := t.copyKey(page, dst, ancNode, idx); err != nil {
			return nil, err
		}
		page.SetChildAt(dst, sibling.PtrLeft())
		page.SetCount(page.Count() + 1)
	}

	c := sibling.Count()
	dst := page.Count()
	CopySlotsCrossNode(page, dst, sibling, 0, c)
	page.SetCount(page.Count() + c)
	sibling.SetCount(0)
	page.Page().Dirty = true
	sibling.Page().Dirty = true

	switch sibling.Page().Addr {
	case page.Left():
		if sibling.Left() != 0 {
			p, err := t.node(sibling.Left())
			if err != nil {
				return nil, err
			}
			p.SetRight(sibling.Right())
			page.SetLeft(sibling.Left())
			t.cache.Put(p.Page())
		} else {
			page.SetLeft(0)
		}
	case page.Right():
		if sibling.Right() != 0 {
			p, err := t.node(sibling.Right())
			if err != nil {
				return nil, err
			}
			p.SetLeft(sibling.Left())
			page.SetRight(sibling.Right())
			t.cache.Put(p.Page())
		} else {
			page.SetRight(0)
		}
	}

	if sp.mergepage != 0 && (sp.mergepage == page.Page().Addr || sp.mergepage == sibling.Page().Addr) {
		sp.mergepage = 0
	}

	t.freePage(sp, sibling.Page().Addr)
	t.cache.Put(page.Page())

	return sibling, nil
}

// shiftPages mirrors my_shift_pages: move roughly half the excess keys
// from the fuller of page/sibling to the emptier one, threading the
// anchor separator through the transfer for internal nodes.
func (t *Tree) shiftPages(page, sibling *Node, anchor PageAddress, sp *eraseScratchpad) (*Node, error) {
	if page.Count() == sibling.Count() {
		return nil, nil
	}
	intern := !page.IsLeaf()
	ancNode, err := t.node(anchor)
	if err != nil {
		return nil, err
	}

	if err := t.uncoupleAll(page.Page().Addr); err != nil {
		return nil, err
	}
	if err := t.uncoupleAll(sibling.Page().Addr); err != nil {
		return nil, err
	}
	if err := t.uncoupleAll(ancNode.Page().Addr); err != nil {
		return nil, err
	}

	finish := func() (*Node, error) {
		page.Page().Dirty = true
		sibling.Page().Dirty = true
		ancNode.Page().Dirty = true
		sp.mergepage = 0
		t.cache.Put(page.Page())
		t.cache.Put(sibling.Page())
		t.cache.Put(ancNode.Page())
		return nil, nil
	}

	if sibling.Count() >= page.Count() {
		var slot int
		if intern {
			idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(sibling, 0))
			if err != nil {
				return nil, err
			}
			slot = idx

			dst := page.Count()
			if err := t.copyKey(page, dst, ancNode, slot); err != nil {
				return nil, err
			}
			page.SetChildAt(dst, sibling.PtrLeft())
			sibling.SetPtrLeft(sibling.ChildAt(0))
			if err := t.replaceKey(ancNode, slot, sibling, 0, true); err != nil {
				return nil, err
			}
			sibling.CopySlotRange(0, 1, sibling.Count()-1)
			page.SetCount(page.Count() + 1)
			sibling.SetCount(sibling.Count() - 1)
		}

		c := (sibling.Count() - page.Count()) / 2
		if c == 0 {
			return finish()
		}
		if intern {
			c--
		}

		if intern {
			dst := page.Count()
			if err := t.copyKey(page, dst, ancNode, slot); err != nil {
				return nil, err
			}
			page.SetChildAt(dst, sibling.PtrLeft())
			page.SetCount(page.Count() + 1)
		}

		dst := page.Count()
		CopySlotsCrossNode(page, dst, sibling, 0, c)
		sibling.CopySlotRange(0, c, sibling.Count()-c)

		if intern {
			sibling.SetPtrLeft(sibling.ChildAt(0))
			if anchor != 0 {
				idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(sibling, 0))
				if err != nil {
					return nil, err
				}
				if err := t.replaceKey(ancNode, idx, sibling, 0, true); err != nil {
					return nil, err
				}
			}
			sibling.CopySlotRange(0, 1, sibling.Count()-1)
		} else {
			idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(sibling, 0))
			if err != nil {
				return nil, err
			}
			if err := t.replaceKey(ancNode, idx, sibling, 0, true); err != nil {
				return nil, err
			}
		}

		page.SetCount(page.Count() + c)
		dec := c
		if intern {
			dec++
		}
		sibling.SetCount(sibling.Count() - dec)
	} else {
		var slot int
		if intern {
			idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(sibling, 0))
			if err != nil {
				return nil, err
			}
			slot = idx

			sibling.CopySlotRange(1, 0, sibling.Count())
			if err := t.copyKey(sibling, 0, ancNode, slot); err != nil {
				return nil, err
			}
			sibling.SetChildAt(0, sibling.PtrLeft())
			sibling.SetPtrLeft(page.ChildAt(page.Count() - 1))
			if err := t.replaceKey(ancNode, slot, page, page.Count()-1, true); err != nil {
				return nil, err
			}
			page.SetCount(page.Count() - 1)
			sibling.SetCount(sibling.Count() + 1)
		}

		c := (page.Count() - sibling.Count()) / 2
		if c == 0 {
			return finish()
		}
		if intern {
			c--
		}

		if intern {
			sibling.CopySlotRange(1, 0, sibling.Count())
			if err := t.replaceKey(sibling, 0, ancNode, slot, true); err != nil {
				return nil, err
			}
			sibling.SetChildAt(0, sibling.PtrLeft())
			sibling.SetCount(sibling.Count() + 1)
		}

		s := page.Count() - c - 1

		sibling.CopySlotRange(c, 0, sibling.Count())
		CopySlotsCrossNode(sibling, 0, page, s+1, c)

		page.SetCount(page.Count() - c)
		sibling.SetCount(sibling.Count() + c)

		if intern {
			last := page.Count() - 1
			sibling.SetPtrLeft(page.ChildAt(last))
			if page.IsExtended(last) {
				blobID := page.SlotBlobID(last)
				if t.blobs != nil {
					_ = t.blobs.Delete(blobID)
				}
				if t.extCache != nil {
					t.extCache.Remove(blobID)
				}
			}
			page.SetCount(page.Count() - 1)
		}

		if anchor != 0 {
			var bteNode *Node
			var bteIdx int
			if intern {
				bteNode, bteIdx = page, s
			} else {
				bteNode, bteIdx = sibling, 0
			}
			idx, _, err := t.searchNodeRef(ancNode, slotKeyRef(bteNode, bteIdx))
			if err != nil {
				return nil, err
			}
			if err := t.replaceKey(ancNode, idx+1, bteNode, bteIdx, true); err != nil {
				return nil, err
			}
		}
	}

	return finish()
}
