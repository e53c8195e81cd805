// Package queue implements the durable two-tier sync request queues.
//
// Each Kind has its own table keyed by subject id, so a subject has at most
// one pending request per kind. A low priority enqueue never touches an
// existing request. A high priority enqueue promotes an existing request
// and refreshes its queued_at, which also restarts its settle delay.
//
//	q := queue.New(db, queue.RoleSync)
//	_ = q.Enqueue(ctx, subjectID, false)
//
//	req, err := q.PopOldest(ctx, false)
//	if req != nil {
//		_ = q.WaitSettled(ctx, req)
//		// handle req.SubjectID
//	}
package queue
