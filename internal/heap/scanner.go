package heap

import (
	"fmt"

	"github.com/tamnm/minirel/internal/status"
	"github.com/tamnm/minirel/internal/storage"
)

// Scanner walks a record file page by page, skipping free slots and
// records the filter rejects. It keeps at most one page pinned; the pin
// is released when the scan crosses a page boundary, hits EOF or closes.
type Scanner struct {
	file   *RecordFile
	filter Filter

	frame    *storage.Frame
	nextPage int32
	nextSlot int32
	done     bool
}

// Next returns the next matching record. The payload slice aliases the
// pinned page and is only valid until the following Next or Close call.
// At end of file it returns a status.RecordEOF error.
func (s *Scanner) Next() (RID, []byte, error) {
	if s.done {
		return RID{}, nil, fmt.Errorf("scan finished: %w", status.RecordEOF)
	}
	for {
		if s.frame == nil {
			pages, err := s.file.pool.PageCount(s.file.file)
			if err != nil {
				s.done = true
				return RID{}, nil, err
			}
			if s.nextPage >= pages {
				s.done = true
				return RID{}, nil, fmt.Errorf("end of file: %w", status.RecordEOF)
			}
			fr, err := s.file.pool.FetchPage(s.file.file, s.nextPage)
			if err != nil {
				s.done = true
				return RID{}, nil, err
			}
			s.frame = fr
			s.nextSlot = 0
		}

		p := recordPage{s.frame.Data}
		if !p.initialized() {
			s.advancePage()
			continue
		}
		for s.nextSlot < int32(p.capacity()) {
			slot := s.nextSlot
			s.nextSlot++
			if !p.occupied(int(slot)) {
				continue
			}
			rec := p.record(int(slot))
			if s.filter != nil && !s.filter.Match(rec) {
				continue
			}
			return RID{Page: s.nextPage, Slot: slot}, rec, nil
		}
		s.advancePage()
	}
}

func (s *Scanner) advancePage() {
	s.file.pool.Unpin(s.frame, false)
	s.frame = nil
	s.nextPage++
}

// Close releases the pinned page, if any. It is safe to call twice.
func (s *Scanner) Close() {
	if s.frame != nil {
		s.file.pool.Unpin(s.frame, false)
		s.frame = nil
	}
	s.done = true
}
