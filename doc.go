// Package auth authenticates EduQuiz admins, teachers and students and
// manages their credentials.
//
// Principals:
//   - Admins and students live in the users table and are told apart by
//     role. Teachers have their own table. Principal wraps either record.
//   - An email is unique per table, so the same address may belong to a
//     teacher and a student at once. Authenticate resolves such overlaps in
//     LoginPrecedence order and skips records whose password does not verify.
//
// Account lifecycle:
//   - AccountLifecycle derives pending, active and inactive from the active
//     flag and the outstanding setup token, and validates transitions.
//   - ProvisionAccountHandler creates a pending account and mails a setup
//     link. PasswordSetHandler consumes the link exactly once and activates
//     the account.
//
// Activity sinks:
//   - ActivitySink receives login, logout, password and account events.
//     Sinks run best effort: a failing sink is logged and never fails the
//     operation that emitted the event.
package auth
