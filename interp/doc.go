/*
Package interp provides the script collaborators used by the signing engine:
an output script classifier (Solve), a decoder for push-only scripts
(PushedStack) and a verifier (VerifyScript) that delegates every signature
check to a pluggable SignatureChecker.

The verifier only understands the opcodes that appear in the standard output
templates (pay-to-pubkey, pay-to-pubkey-hash, pay-to-script-hash and bare
multisig). Scripts using any other opcode fail to verify.

Signatures carrying the fork id sighash flag commit to the BIP143-style
digest; all other signatures use the original digest algorithm.
*/
package interp
