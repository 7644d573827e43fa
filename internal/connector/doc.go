// Package connector composes provider resources into instances.
//
// A create request turns into one virtual network and one security group
// shared by every replica, plus a network interface, a public IP and a VM per
// replica, all submitted to the provider as a single batch. Deleting an
// instance walks the same graph backwards and keeps the shared resources that
// other interfaces still reference.
//
// Public IPs can be added to and removed from running instances, and scripts
// can be run on them any number of times through the provider's VM extension
// mechanism.
//
// All operations take the infrastructure to act on and resolve its provider
// client through a cloud.Resolver, so a single Connector serves any number of
// accounts concurrently.
package connector
