package main

// Version is the application version, reported on startup.
const Version = "1.2.0"
