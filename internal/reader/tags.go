package reader

import (
	"context"
	"sort"

	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Inventory returns the identifiers of tags in the reader's antenna field.
func (r *Registry) Inventory(ctx context.Context, id string) ([]string, error) {
	r.mu.Lock()
	var ev events
	tags, err := r.inventory(ctx, "inventory", id, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return tags, err
}

func (r *Registry) inventory(ctx context.Context, op, id string, ev *events) ([]string, error) {
	if err := r.validate(op, []any{id},
		r.mustExist(id),
		r.mustBeConnected(id),
	); err != nil {
		return nil, err
	}

	e := r.entries[id]
	s, _ := e.session()
	tags, err := s.Inventory(ctx)
	r.settle(e, op, err, ev)
	if err != nil {
		return nil, err
	}

	ev.add(EventInventory, id, map[string]any{"count": len(tags), "tags": tags})
	return tags, nil
}

// ReadTags reads the payload of each tag. With no tag ids the working set
// comes from an inventory, and a failed inventory fails the whole call.
// Otherwise every tag is attempted and failures are reported per tag.
func (r *Registry) ReadTags(ctx context.Context, id string, tagIDs []string) (*TagBatch, error) {
	r.mu.Lock()
	var ev events
	batch, err := r.readTags(ctx, id, tagIDs, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return batch, err
}

func (r *Registry) readTags(ctx context.Context, id string, tagIDs []string, ev *events) (*TagBatch, error) {
	if len(tagIDs) == 0 {
		found, err := r.inventory(ctx, "read_tags", id, ev)
		if err != nil {
			return nil, err
		}
		tagIDs = found
	} else if err := r.validate("read_tags", []any{id, tagIDs},
		r.mustExist(id),
		r.mustBeConnected(id),
	); err != nil {
		return nil, err
	}

	e := r.entries[id]
	batch := &TagBatch{}
	for _, tag := range dedupe(tagIDs) {
		if InvalidTagID.Check(tag) {
			batch.fail(tag, r.reject("read_tags", []any{id, tag}, InvalidTagID.Describe(tag)))
			continue
		}
		s, ok := e.session()
		if !ok {
			batch.fail(tag, ReaderIsDisconnected.Describe(id))
			continue
		}

		text, err := s.ReadTag(ctx, tag)
		r.settle(e, "read_tag", err, ev)
		if err != nil {
			batch.fail(tag, err)
			continue
		}
		batch.ok(tag, text)
	}

	ev.add(EventTagsRead, id, batchDetails(batch))
	return batch, nil
}

// WriteTags writes a payload to each tag in data, keyed by tag id. When
// clear is set the values are ignored and every tag is blanked. Failures
// are reported per tag and do not stop the batch.
func (r *Registry) WriteTags(ctx context.Context, id string, data map[string]any, clear bool) (*TagBatch, error) {
	r.mu.Lock()
	var ev events
	batch, err := r.writeTags(ctx, "write_tags", id, data, clear, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return batch, err
}

// ClearTags blanks each listed tag, or every tag found by inventory when
// tagIDs is empty.
func (r *Registry) ClearTags(ctx context.Context, id string, tagIDs []string) (*TagBatch, error) {
	r.mu.Lock()
	var ev events
	batch, err := r.clearTags(ctx, id, tagIDs, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return batch, err
}

func (r *Registry) clearTags(ctx context.Context, id string, tagIDs []string, ev *events) (*TagBatch, error) {
	if len(tagIDs) == 0 {
		found, err := r.inventory(ctx, "clear_tags", id, ev)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			ev.add(EventTagsCleared, id, batchDetails(&TagBatch{}))
			return &TagBatch{}, nil
		}
		tagIDs = found
	}

	data := make(map[string]any, len(tagIDs))
	for _, t := range tagIDs {
		data[t] = nil
	}
	return r.writeTags(ctx, "clear_tags", id, data, true, ev)
}

func (r *Registry) writeTags(ctx context.Context, op, id string, data map[string]any, clear bool, ev *events) (*TagBatch, error) {
	if err := r.validate(op, []any{id, data},
		r.mustExist(id),
		when(WrongRequestShape, func() bool { return len(data) == 0 }, "no tags"),
		r.mustBeConnected(id),
	); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(data))
	for t := range data {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	e := r.entries[id]
	batch := &TagBatch{}
	for _, tag := range tags {
		if InvalidTagID.Check(tag) {
			batch.fail(tag, r.reject(op, []any{id, tag}, InvalidTagID.Describe(tag)))
			continue
		}

		var payload tagcodec.Payload
		if !clear {
			p, perr := r.encode(data[tag])
			if perr != nil {
				batch.fail(tag, r.reject(op, []any{id, tag}, perr))
				continue
			}
			payload = p
		}

		s, ok := e.session()
		if !ok {
			batch.fail(tag, ReaderIsDisconnected.Describe(id))
			continue
		}

		err := s.WriteTag(ctx, tag, payload)
		r.settle(e, "write_tag", err, ev)
		if err != nil {
			batch.fail(tag, err)
			continue
		}
		batch.ok(tag, 0)
	}

	t := EventTagsWritten
	if clear {
		t = EventTagsCleared
	}
	ev.add(t, id, batchDetails(batch))
	return batch, nil
}

// encode validates and encodes one payload value.
func (r *Registry) encode(v any) (tagcodec.Payload, *Error) {
	if InvalidTagPayload.Check(v) {
		return tagcodec.Payload{}, InvalidTagPayload.Describe("payload must be a string")
	}
	p, err := r.codec.EncodePayload(v.(string))
	if err != nil {
		return tagcodec.Payload{}, InvalidTagPayload.Describe(err.Error())
	}
	return p, nil
}

// reject logs a per-item validation failure the way validate does.
func (r *Registry) reject(op string, args []any, e *Error) *Error {
	r.logger.Warn("request rejected",
		"operation", op,
		"args", args,
		"error_code", e.Code,
		"error_msg", e.Message,
	)
	return e
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func batchDetails(b *TagBatch) map[string]any {
	failed := make([]string, 0, len(b.Errors))
	for t := range b.Errors {
		failed = append(failed, t)
	}
	sort.Strings(failed)
	return map[string]any{
		"succeeded":   b.Succeeded(),
		"failed":      b.Failed(),
		"failed_tags": failed,
	}
}
