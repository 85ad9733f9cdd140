// Command windowlimit runs and operates the multi-window rate limiter.
//
// It serves a rate limited demo API together with an admin API, and offers
// one-shot commands to check, inspect and clear the limits of an identity.
package main

func main() {
	Execute()
}
