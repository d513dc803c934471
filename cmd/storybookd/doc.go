// Command storybookd runs the storybook generation daemon and provides CLI
// subcommands for talking to a running instance.
package main
