// Package password provides password hashing and verification for Parley.
//
// It implements Argon2id with a PHC-style encoded string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Security notes:
//   - Hash strings are treated as untrusted input during Verify and are
//     validated accordingly.
//   - Verification refuses hashes whose parameters exceed reasonable bounds
//     to keep attacker-controlled hash strings from driving resource usage.
package password
