// Package notify implements the persisted session-notification mechanism
// (CreateNotifications/GetNotifications/DeleteNotifications) and an
// in-process publish/subscribe Broker that fans out each created
// notification without requiring pollers to re-call GetNotifications.
package notify
