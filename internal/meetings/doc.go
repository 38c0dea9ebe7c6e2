// Package meetings schedules and lists Webex meetings for authenticated users.
//
// Every meeting is owned by a single configured host account. The user who
// scheduled it is recorded in a banner at the top of the agenda and is always
// invited.
package meetings
