// Package jobs drains the sync request queues and keeps them fed.
//
// A Driver runs one Ticker in a loop and decides how long to wait between
// ticks: almost nothing after a handled request, until a wake signal or a
// short timeout when the queue is empty, and an exponential Backoff when
// a collaborator is unavailable. RoleSync and UserInfoSync are the two
// tickers. The Producer walks every known identity and platform member and
// enqueues low priority requests for them, and the Scheduler runs it on a
// cron schedule together with housekeeping jobs.
package jobs
