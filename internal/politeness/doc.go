// Package politeness keeps the crawler a well-behaved client: DomainLimiter
// spaces requests to each host and RobotsAdvisor fetches robots.txt once per
// host.
//
// By default robots.txt is advisory: it is fetched and cached but never
// blocks a URL. WithEnforcement turns on rule checking with
// github.com/temoto/robotstxt. Robots failures always fail open.
package politeness
