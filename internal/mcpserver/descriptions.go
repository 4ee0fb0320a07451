package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeAudit() string {
	return `Audits compiled bytecode modules (.bcm) and project settings for performance problems.

USE WHEN:
- Looking for expensive API calls (reflection, string concatenation, allocations) in game code
- Checking which code paths reach a flagged call site
- Reviewing a build for debug flags, missing symbols or oversized modules
- Validating project settings before shipping to a platform

INTERPRETING RESULTS:
- Severity levels: critical > major > moderate > minor > info
- descriptor_id identifies the rule; call describe_descriptor for the fix
- Issues without a descriptor_id are informational (unloadable modules, skipped methods)
- location is the source line of the call site when debug symbols exist
- Platform changes the result: some descriptors only apply to mobile targets

METRICS RETURNED:
- session: tool version, platform, runtime version, VCS revision
- summary: totals by category and severity, failed and cancelled modules
- issues: severity, descriptor id, category, description, location`
}

func describeListDescriptors() string {
	return `Lists the diagnostic descriptors the auditor checks for.

USE WHEN:
- Discovering what the auditor can detect
- Finding descriptor ids to raise, lower or hide with severity rules
- Checking which diagnostics apply to a platform

INTERPRETING RESULTS:
- severity is the default; configured rules can override it
- areas tag what an issue costs: cpu, memory, gpu, build-size, load-time
- fixable descriptors can be repaired automatically

METRICS RETURNED:
- Per descriptor: id, title, default severity, areas, platforms, fixable`
}

func describeDescriptor() string {
	return `Describes one diagnostic descriptor in full.

USE WHEN:
- Explaining an issue reported by audit
- Looking up the recommended fix for a descriptor id

INTERPRETING RESULTS:
- type and method name the API call that triggers the descriptor
- opcode names a conversion instruction that triggers it
- min_version and max_version bound the runtime versions it applies to

METRICS RETURNED:
- id, title, message format, default severity, areas, platforms
- description, recommendation and documentation URL`
}
