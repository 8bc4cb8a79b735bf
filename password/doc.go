// Package password hashes and verifies account passwords.
//
// [Bcrypt] is the default. [Argon2] is available for deployments that want
// a memory-hard KDF; its hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Every [Hasher] exposes DummyVerify, which spends the same work as a real
// comparison against a fixed hash. Login calls it when the account does not
// exist so response time does not reveal whether an email is registered.
//
// This package never stores or logs passwords.
package password
