// Package manifest parses YAML prompt manifests into promptkit.PromptTemplate.
//
// A manifest looks like:
//
//	name: greet
//	version: "1"
//	description: Greets a user.
//	system: You are a {role}.
//	user: Say hi to {target}.
//	request_format:
//	  role: string
//	  target: string
//	response_format:
//	  result: string
//
// Unknown keys are rejected so typos do not silently drop fields.
package manifest
